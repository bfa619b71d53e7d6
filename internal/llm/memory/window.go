package memory

import (
	"sync"

	"github.com/cloudwego/eino/schema"
)

const DefaultMaxMessages = 50

// Window is a bounded conversation memory. When full, the oldest messages are dropped,
// together with any tool results left without the assistant call that produced them.
type Window struct {
	mu   sync.Mutex
	max  int
	msgs []*schema.Message
}

func NewWindow(maxMessages int) *Window {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Window{max: maxMessages}
}

func (w *Window) Add(msgs ...*schema.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		if m != nil {
			w.msgs = append(w.msgs, m)
		}
	}
	w.evictLocked()
}

func (w *Window) evictLocked() {
	for len(w.msgs) > w.max {
		w.msgs = w.msgs[1:]
	}
	for len(w.msgs) > 0 && w.msgs[0].Role == schema.Tool {
		w.msgs = w.msgs[1:]
	}
}

func (w *Window) Clear() {
	w.mu.Lock()
	w.msgs = nil
	w.mu.Unlock()
}

// Messages returns a snapshot in chronological order.
func (w *Window) Messages() []*schema.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*schema.Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func (w *Window) Max() int {
	return w.max
}
