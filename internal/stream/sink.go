package stream

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Sink receives display chunks. Send reports true once the consumer has gone away;
// the engine stops emitting after that but keeps consuming events.
type Sink interface {
	Send(c Chunk) (closed bool)
}

// PipeSink forwards chunks into an eino stream pipe.
type PipeSink struct {
	w *schema.StreamWriter[Chunk]
}

func NewPipeSink(w *schema.StreamWriter[Chunk]) *PipeSink {
	return &PipeSink{w: w}
}

func (s *PipeSink) Send(c Chunk) bool {
	return s.w.Send(c, nil)
}

// BufferSink collects chunks in memory so the display stream can be inspected after
// Process returns.
type BufferSink struct {
	mu     sync.Mutex
	chunks []Chunk
	// CloseAfter makes Send report closed once this many chunks were accepted; 0 disables it.
	CloseAfter int
}

func (s *BufferSink) Send(c Chunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CloseAfter > 0 && len(s.chunks) >= s.CloseAfter {
		return true
	}
	s.chunks = append(s.chunks, c)
	return false
}

func (s *BufferSink) Chunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Text concatenates the text chunks.
func (s *BufferSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, c := range s.chunks {
		if c.Type == ChunkText {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// WriterSink prints text chunks to W and error chunks on their own line. A failed write
// counts as the consumer going away.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Send(c Chunk) bool {
	var err error
	switch c.Type {
	case ChunkText:
		_, err = io.WriteString(s.W, c.Data)
	case ChunkError:
		_, err = fmt.Fprintf(s.W, "\nerror: %s\n", c.Data)
	}
	return err != nil
}

// Discard drops every chunk.
var Discard Sink = discard{}

type discard struct{}

func (discard) Send(Chunk) bool { return false }
