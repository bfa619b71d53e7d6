package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"codemother/internal/logging"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	ucb "github.com/cloudwego/eino/utils/callbacks"
	"github.com/rs/zerolog"
)

type callerKey struct{}

// Caller identifies who a model call is made for.
type Caller struct {
	AppID  uint
	UserID uint
}

// WithCaller tags ctx so model calls made with it are attributed to appID and userID.
func WithCaller(ctx context.Context, appID, userID uint) context.Context {
	return context.WithValue(ctx, callerKey{}, Caller{AppID: appID, UserID: userID})
}

func callerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}

// CallStats aggregates model calls for one caller and model.
type CallStats struct {
	Started          int
	Succeeded        int
	Failed           int
	TotalLatency     time.Duration
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LastError        string
}

type statsKey struct {
	caller Caller
	model  string
}

type callState struct{}

type inflight struct {
	caller Caller
	model  string
	start  time.Time
}

// Monitor records request counts, latency and token usage of chat model calls through
// eino callbacks.
type Monitor struct {
	mu      sync.Mutex
	stats   map[statsKey]*CallStats
	pending sync.WaitGroup
	now     func() time.Time
	log     zerolog.Logger
}

func NewMonitor() *Monitor {
	return &Monitor{
		stats: make(map[statsKey]*CallStats),
		now:   time.Now,
		log:   logging.Component("model_monitor"),
	}
}

// Attach returns ctx with the monitor installed as the chat model callback handler.
func (m *Monitor) Attach(ctx context.Context, name string) context.Context {
	if m == nil {
		return ctx
	}
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      name,
		Component: components.ComponentOfChatModel,
	}, m.Handler())
}

func (m *Monitor) Handler() callbacks.Handler {
	return ucb.NewHandlerHelper().ChatModel(&ucb.ModelCallbackHandler{
		OnStart:               m.onStart,
		OnEnd:                 m.onEnd,
		OnEndWithStreamOutput: m.onEndStream,
		OnError:               m.onError,
	}).Handler()
}

// Stats returns a copy of the counters for appID, userID and modelName.
func (m *Monitor) Stats(appID, userID uint, modelName string) CallStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stats[statsKey{Caller{appID, userID}, modelName}]; ok {
		return *s
	}
	return CallStats{}
}

// Wait blocks until every streamed response seen so far has been accounted for.
func (m *Monitor) Wait() { m.pending.Wait() }

func (m *Monitor) onStart(ctx context.Context, _ *callbacks.RunInfo, input *model.CallbackInput) context.Context {
	call := &inflight{caller: callerFrom(ctx), start: m.now()}
	if input != nil && input.Config != nil {
		call.model = input.Config.Model
	}
	m.update(call, func(s *CallStats) { s.Started++ })
	return context.WithValue(ctx, callState{}, call)
}

func (m *Monitor) onEnd(ctx context.Context, _ *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
	call := m.callFrom(ctx)
	var usage *model.TokenUsage
	if output != nil {
		usage = output.TokenUsage
	}
	m.succeed(call, usage)
	return ctx
}

func (m *Monitor) onEndStream(ctx context.Context, _ *callbacks.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
	call := m.callFrom(ctx)
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		defer output.Close()
		var usage *model.TokenUsage
		for {
			chunk, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				m.fail(call, err)
				return
			}
			if chunk == nil {
				continue
			}
			if chunk.TokenUsage != nil {
				usage = chunk.TokenUsage
			}
		}
		m.succeed(call, usage)
	}()
	return ctx
}

func (m *Monitor) onError(ctx context.Context, _ *callbacks.RunInfo, err error) context.Context {
	m.fail(m.callFrom(ctx), err)
	return ctx
}

// callFrom returns the call started in ctx. Calls whose start was not seen are counted
// under an unknown model.
func (m *Monitor) callFrom(ctx context.Context) *inflight {
	call, ok := ctx.Value(callState{}).(*inflight)
	if !ok {
		call = &inflight{caller: callerFrom(ctx), start: m.now()}
	}
	return call
}

func (m *Monitor) succeed(call *inflight, usage *model.TokenUsage) {
	latency := m.now().Sub(call.start)
	m.update(call, func(s *CallStats) {
		s.Succeeded++
		s.TotalLatency += latency
		if usage != nil {
			s.PromptTokens += usage.PromptTokens
			s.CompletionTokens += usage.CompletionTokens
			s.TotalTokens += usage.TotalTokens
		}
	})
	ev := m.log.Info().
		Uint("app_id", call.caller.AppID).
		Uint("user_id", call.caller.UserID).
		Str("model", call.model).
		Dur("latency", latency)
	if usage != nil {
		ev = ev.Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Int("total_tokens", usage.TotalTokens)
	}
	ev.Msg("model call finished")
}

func (m *Monitor) fail(call *inflight, err error) {
	latency := m.now().Sub(call.start)
	m.update(call, func(s *CallStats) {
		s.Failed++
		s.TotalLatency += latency
		s.LastError = err.Error()
	})
	m.log.Warn().Err(err).
		Uint("app_id", call.caller.AppID).
		Uint("user_id", call.caller.UserID).
		Str("model", call.model).
		Dur("latency", latency).
		Msg("model call failed")
}

func (m *Monitor) update(call *inflight, fn func(*CallStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := statsKey{call.caller, call.model}
	s, ok := m.stats[key]
	if !ok {
		s = &CallStats{}
		m.stats[key] = s
	}
	fn(s)
}
