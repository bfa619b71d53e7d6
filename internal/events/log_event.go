package events

import (
	"context"

	"github.com/rs/zerolog"

	"codemother/internal/logging"
)

func logEvent(_ context.Context, name string, event Event) {
	log := logging.Component("events")
	var e *zerolog.Event
	switch event.Type {
	case EventError:
		e = log.Error()
	case EventWarn:
		e = log.Warn()
	case EventDebug:
		e = log.Debug()
	default:
		e = log.Info()
	}
	e = e.Str("event", name).Str("event_id", event.ID).Str("type", string(event.Type))
	if event.SessionKey != "" {
		e = e.Str("session", event.SessionKey)
	}
	for k, v := range event.Metadata {
		e = e.Str(k, v)
	}
	e.Msg(event.Message)
}
