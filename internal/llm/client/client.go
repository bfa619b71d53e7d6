package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"codemother/internal/apperrors"
	"codemother/internal/logging"
	"codemother/internal/stream"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxToolRounds = 20
	defaultFallbackUser  = "Continue with the project."
	exitToolName         = "exit"
)

// Memory is the conversation window a generation reads from and appends to.
type Memory interface {
	Add(msgs ...*schema.Message)
	Messages() []*schema.Message
}

// Request is one generation call.
type Request struct {
	SystemPrompt string
	Prompt       string
	// Memory may be nil for one-shot generations.
	Memory Memory
	Tools  []tool.BaseTool
}

// Backend produces the event stream consumed by the stream engine.
type Backend interface {
	Generate(ctx context.Context, req Request) (*schema.StreamReader[stream.Event], error)
}

// ModelBackend drives a chat model, executing tool calls between model turns until the
// model answers without calling tools.
type ModelBackend struct {
	ChatModel     model.ToolCallingChatModel
	MaxToolRounds int
	// Monitor, when set, records every model turn.
	Monitor *Monitor
	log     zerolog.Logger
}

func NewModelBackend(m model.ToolCallingChatModel) *ModelBackend {
	return &ModelBackend{
		ChatModel:     m,
		MaxToolRounds: DefaultMaxToolRounds,
		log:           logging.Component("backend"),
	}
}

type sliceMemory struct {
	msgs []*schema.Message
}

func (m *sliceMemory) Add(msgs ...*schema.Message)  { m.msgs = append(m.msgs, msgs...) }
func (m *sliceMemory) Messages() []*schema.Message { return m.msgs }

func (b *ModelBackend) Generate(ctx context.Context, req Request) (*schema.StreamReader[stream.Event], error) {
	if b == nil || b.ChatModel == nil {
		return nil, fmt.Errorf("%w: chat model not configured", apperrors.ErrConfiguration)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperrors.Validation("prompt is required")
	}

	chat := b.ChatModel
	invokers := make(map[string]tool.InvokableTool, len(req.Tools))
	if len(req.Tools) > 0 {
		infos := make([]*schema.ToolInfo, 0, len(req.Tools))
		for _, t := range req.Tools {
			info, err := t.Info(ctx)
			if err != nil {
				return nil, fmt.Errorf("tool info: %w", err)
			}
			infos = append(infos, info)
			if inv, ok := t.(tool.InvokableTool); ok {
				invokers[info.Name] = inv
			}
		}
		withTools, err := b.ChatModel.WithTools(infos)
		if err != nil {
			return nil, apperrors.Backend("bind tools", err)
		}
		chat = withTools
	}

	mem := req.Memory
	if mem == nil {
		mem = &sliceMemory{}
	}
	mem.Add(schema.UserMessage(req.Prompt))

	sr, sw := schema.Pipe[stream.Event](16)
	go b.loop(ctx, chat, invokers, req, mem, sw)
	return sr, nil
}

func (b *ModelBackend) loop(ctx context.Context, chat model.BaseChatModel, invokers map[string]tool.InvokableTool, req Request, mem Memory, sw *schema.StreamWriter[stream.Event]) {
	defer sw.Close()

	rounds := b.MaxToolRounds
	if rounds <= 0 {
		rounds = DefaultMaxToolRounds
	}
	for round := 0; round < rounds; round++ {
		history, _ := normalizeConversationHistory(mem.Messages(), req.Prompt)
		input := make([]*schema.Message, 0, len(history)+1)
		if strings.TrimSpace(req.SystemPrompt) != "" {
			input = append(input, schema.SystemMessage(req.SystemPrompt))
		}
		input = append(input, history...)

		full, ok := b.streamTurn(ctx, chat, input, sw)
		if !ok {
			return
		}
		if full == nil {
			return
		}
		mem.Add(full)
		if len(full.ToolCalls) == 0 {
			return
		}

		exited := false
		for _, tc := range full.ToolCalls {
			result := b.runTool(ctx, invokers, tc)
			mem.Add(&schema.Message{
				Role:       schema.Tool,
				Content:    result,
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
			})
			if sw.Send(stream.NewToolCompleted(tc.ID, tc.Function.Name, tc.Function.Arguments, result), nil) {
				return
			}
			if tc.Function.Name == exitToolName {
				exited = true
			}
		}
		if exited {
			return
		}
	}
	b.log.Warn().Int("rounds", rounds).Msg("tool loop stopped at round limit")
}

// streamTurn forwards one model turn and returns the concatenated assistant message.
// ok is false when the consumer closed the stream or an error was sent.
func (b *ModelBackend) streamTurn(ctx context.Context, chat model.BaseChatModel, input []*schema.Message, sw *schema.StreamWriter[stream.Event]) (*schema.Message, bool) {
	reader, err := chat.Stream(b.Monitor.Attach(ctx, "codegen"), input)
	if err != nil {
		sw.Send(stream.Event{}, apperrors.Backend("model stream", err))
		return nil, false
	}
	defer reader.Close()

	var chunks []*schema.Message
	ids := map[int]string{}
	names := map[int]string{}
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			sw.Send(stream.Event{}, apperrors.Backend("model stream", err))
			return nil, false
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)

		if chunk.Content != "" {
			if sw.Send(stream.NewTextDelta(chunk.Content), nil) {
				return nil, false
			}
		}
		for _, tc := range chunk.ToolCalls {
			id, name := tc.ID, tc.Function.Name
			if tc.Index != nil {
				if id != "" {
					ids[*tc.Index] = id
				} else {
					id = ids[*tc.Index]
				}
				if name != "" {
					names[*tc.Index] = name
				} else {
					name = names[*tc.Index]
				}
			}
			if id == "" {
				continue
			}
			if sw.Send(stream.NewToolAnnounced(id, name, tc.Function.Arguments), nil) {
				return nil, false
			}
		}
	}
	if len(chunks) == 0 {
		return nil, true
	}
	full, err := schema.ConcatMessages(chunks)
	if err != nil {
		sw.Send(stream.Event{}, apperrors.Backend("concat messages", err))
		return nil, false
	}
	return full, true
}

func (b *ModelBackend) runTool(ctx context.Context, invokers map[string]tool.InvokableTool, tc schema.ToolCall) string {
	inv, ok := invokers[tc.Function.Name]
	if !ok {
		b.log.Warn().Str("tool", tc.Function.Name).Msg("model called an unknown tool")
		return fmt.Sprintf("Error: there is no tool called %s", tc.Function.Name)
	}
	result, err := inv.InvokableRun(ctx, tc.Function.Arguments)
	if err != nil {
		b.log.Error().Err(err).Str("tool", tc.Function.Name).Msg("tool execution failed")
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

// normalizeConversationHistory makes the history acceptable to providers that require the
// first non-system message to come from the user. Leading assistant and tool messages are
// dropped; when no user message exists at all, fallback is inserted instead.
func normalizeConversationHistory(history []*schema.Message, fallback string) ([]*schema.Message, bool) {
	start := 0
	for start < len(history) && history[start].Role == schema.System {
		start++
	}
	if start >= len(history) || history[start].Role == schema.User {
		return history, false
	}

	firstUser := -1
	for i := start; i < len(history); i++ {
		if history[i].Role == schema.User {
			firstUser = i
			break
		}
	}

	out := make([]*schema.Message, 0, len(history)+1)
	out = append(out, history[:start]...)
	if firstUser >= 0 {
		return append(out, history[firstUser:]...), true
	}
	if strings.TrimSpace(fallback) == "" {
		fallback = defaultFallbackUser
	}
	out = append(out, schema.UserMessage(fallback))
	return append(out, history[start:]...), true
}
