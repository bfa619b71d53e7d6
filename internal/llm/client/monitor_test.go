package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"codemother/internal/llm/memory"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steppingMonitor(step time.Duration) *Monitor {
	m := NewMonitor()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		now = now.Add(step)
		return now
	}
	return m
}

func TestMonitor_RecordsLatencyAndTokens(t *testing.T) {
	m := steppingMonitor(time.Second)
	ctx := m.Attach(WithCaller(context.Background(), 3, 7), "test")

	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Config: &model.Config{Model: "gpt-test"}})
	callbacks.OnEnd(ctx, &model.CallbackOutput{TokenUsage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}})

	s := m.Stats(3, 7, "gpt-test")
	assert.Equal(t, 1, s.Started)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, time.Second, s.TotalLatency)
	assert.Equal(t, 10, s.PromptTokens)
	assert.Equal(t, 5, s.CompletionTokens)
	assert.Equal(t, 15, s.TotalTokens)

	assert.Zero(t, m.Stats(3, 8, "gpt-test").Started)
}

func TestMonitor_StreamedResponseUsesLastUsage(t *testing.T) {
	m := steppingMonitor(time.Millisecond)
	ctx := m.Attach(WithCaller(context.Background(), 1, 2), "test")

	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Config: &model.Config{Model: "claude-test"}})
	_, out := callbacks.OnEndWithStreamOutput(ctx, schema.StreamReaderFromArray([]*model.CallbackOutput{
		{Message: schema.AssistantMessage("a", nil)},
		{Message: schema.AssistantMessage("b", nil), TokenUsage: &model.TokenUsage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}},
	}))
	out.Close()
	m.Wait()

	s := m.Stats(1, 2, "claude-test")
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 6, s.TotalTokens)
}

func TestMonitor_RecordsErrors(t *testing.T) {
	m := steppingMonitor(time.Millisecond)
	ctx := m.Attach(WithCaller(context.Background(), 1, 2), "test")

	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Config: &model.Config{Model: "gemini-test"}})
	callbacks.OnError(ctx, errors.New("429 too many requests"))

	s := m.Stats(1, 2, "gemini-test")
	assert.Equal(t, 1, s.Started)
	assert.Equal(t, 1, s.Failed)
	assert.Zero(t, s.Succeeded)
	assert.Equal(t, "429 too many requests", s.LastError)
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor
	ctx := context.Background()
	assert.Equal(t, ctx, m.Attach(ctx, "test"))
}

// reportingModel fires model callbacks around a scripted stream, the way provider models do.
type reportingModel struct {
	*scriptedModel
}

func (m reportingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Messages: input, Config: &model.Config{Model: "scripted"}})
	sr, err := m.scriptedModel.Stream(ctx, input, opts...)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}
	out := schema.StreamReaderWithConvert(sr, func(msg *schema.Message) (*model.CallbackOutput, error) {
		return &model.CallbackOutput{Message: msg}, nil
	})
	_, out = callbacks.OnEndWithStreamOutput(ctx, out)
	return schema.StreamReaderWithConvert(out, func(o *model.CallbackOutput) (*schema.Message, error) {
		return o.Message, nil
	}), nil
}

func (m reportingModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if _, err := m.scriptedModel.WithTools(tools); err != nil {
		return nil, err
	}
	return m, nil
}

func TestModelBackend_ReportsTurnsToMonitor(t *testing.T) {
	inner := &scriptedModel{turns: [][]*schema.Message{{schema.AssistantMessage("hi", nil)}}}
	monitor := NewMonitor()
	backend := NewModelBackend(reportingModel{inner})
	backend.Monitor = monitor

	sr, err := backend.Generate(WithCaller(context.Background(), 5, 9), Request{Prompt: "hello", Memory: memory.NewWindow(10)})
	require.NoError(t, err)
	_, err = drain(t, sr)
	require.NoError(t, err)
	monitor.Wait()

	s := monitor.Stats(5, 9, "scripted")
	assert.Equal(t, 1, s.Started)
	assert.Equal(t, 1, s.Succeeded)
}

func TestModelBackend_ReportsStreamFailure(t *testing.T) {
	inner := &scriptedModel{failErr: errors.New("503")}
	monitor := NewMonitor()
	backend := NewModelBackend(reportingModel{inner})
	backend.Monitor = monitor

	sr, err := backend.Generate(WithCaller(context.Background(), 5, 9), Request{Prompt: "hello"})
	require.NoError(t, err)
	_, err = drain(t, sr)
	require.Error(t, err)

	assert.Equal(t, 1, monitor.Stats(5, 9, "scripted").Failed)
}
