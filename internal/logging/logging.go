package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the log level and output format ("json" or "console").
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

var (
	mu   sync.RWMutex
	root = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Setup builds the process-wide root logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	l := zerolog.New(out).Level(level).With().Timestamp().Logger()
	mu.Lock()
	root = l
	mu.Unlock()
	return l
}

// Logger returns the root logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Component returns the root logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// Writer adapts a logger to io.Writer so line-oriented loggers (gorm) end up in zerolog.
func Writer(l zerolog.Logger, level zerolog.Level) io.Writer {
	return lineWriter{l: l, level: level}
}

type lineWriter struct {
	l     zerolog.Logger
	level zerolog.Level
}

func (w lineWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.l.WithLevel(w.level).Msg(msg)
	}
	return len(p), nil
}
