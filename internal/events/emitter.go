package events

import (
	"context"
	"sync"
)

// EmitterFunc receives every emitted event.
type EmitterFunc func(ctx context.Context, name string, evt Event)

var (
	emitMu  sync.RWMutex
	emitter EmitterFunc = logEvent
)

// Emit delivers evt to the configured emitter, filling the session key from ctx.
func Emit(ctx context.Context, name string, evt Event) {
	if evt.SessionKey == "" {
		if session := SessionFromContext(ctx); session != "" {
			evt.SessionKey = session
		}
	}
	emitMu.RLock()
	f := emitter
	emitMu.RUnlock()
	f(ctx, name, evt)
}

// SetCustomEmitter replaces the emitter; nil restores the logging emitter.
func SetCustomEmitter(f EmitterFunc) {
	emitMu.Lock()
	defer emitMu.Unlock()
	if f == nil {
		emitter = logEvent
		return
	}
	emitter = f
}

// Tee emits to the logging emitter and to f.
func Tee(f EmitterFunc) EmitterFunc {
	return func(ctx context.Context, name string, evt Event) {
		logEvent(ctx, name, evt)
		if f != nil {
			f(ctx, name, evt)
		}
	}
}
