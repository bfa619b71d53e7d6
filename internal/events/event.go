package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventDebug   EventType = "debug"
	EventInfo    EventType = "info"
	EventWarn    EventType = "warn"
	EventSuccess EventType = "success"
	EventError   EventType = "error"
)

const (
	LLMEventTool      = "llm:tool"
	WorkflowStep      = "workflow:step"
	WorkflowCompleted = "workflow:completed"
	WorkflowFailed    = "workflow:failed"
)

// Event is a progress notification about tool activity or workflow steps.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Message    string            `json:"message"`
	Timestamp  time.Time         `json:"timestamp"`
	SessionKey string            `json:"sessionKey,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type contextKey string

const sessionContextKey contextKey = "codemother/events/session"

// WithSession returns a derived context annotated with the given session key
// so event emitters can automatically scope payloads.
func WithSession(ctx context.Context, sessionKey string) context.Context {
	if strings.TrimSpace(sessionKey) == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey, sessionKey)
}

// SessionFromContext extracts the session key associated with ctx.
func SessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionContextKey).(string); ok {
		return v
	}
	return ""
}

func New(eventType EventType, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewInfo(message string) Event    { return New(EventInfo, message) }
func NewWarn(message string) Event    { return New(EventWarn, message) }
func NewError(message string) Event   { return New(EventError, message) }
func NewSuccess(message string) Event { return New(EventSuccess, message) }
func NewDebug(message string) Event   { return New(EventDebug, message) }

// NewToolEvent tags an event with the tool action and the path it touched.
func NewToolEvent(eventType EventType, message, action, path string) Event {
	evt := New(eventType, message)
	evt.Metadata = map[string]string{"action": action, "path": path}
	return evt
}

// NewStepEvent describes a workflow step transition.
func NewStepEvent(eventType EventType, step, message string) Event {
	evt := New(eventType, message)
	evt.Metadata = map[string]string{"step": step}
	return evt
}

// With returns a copy of evt carrying an extra metadata entry.
func (e Event) With(key, value string) Event {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}
