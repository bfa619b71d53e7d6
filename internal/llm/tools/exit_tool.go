package tools

import (
	"context"

	"codemother/internal/events"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

type ExitInput struct{}

// ExitTool lets the model signal that the project is complete.
type ExitTool struct{}

func (ExitTool) Name() string        { return "exit" }
func (ExitTool) DisplayName() string { return "Exit" }

func (t ExitTool) FormatAnnouncement() string {
	return announce(t.DisplayName())
}

func (ExitTool) FormatResult(string) string {
	return "[Generation finished]"
}

func (t ExitTool) Bind(Workspace) (tool.BaseTool, error) {
	return utils.InferTool(t.Name(), ToolDescription(t.Name(), "Finish the generation"),
		func(ctx context.Context, _ *ExitInput) (*Output, error) {
			events.Emit(ctx, events.LLMEventTool, events.NewSuccess("Exit: generation finished"))
			return &Output{
				Title:  "exit",
				Output: "Generation finished. Stop calling tools and reply with a short summary.",
			}, nil
		})
}
