package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codemother/internal/events"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

type WriteFileInput struct {
	RelativeFilePath string `json:"relativeFilePath" jsonschema:"description=Path of the file relative to the project root"`
	Content          string `json:"content" jsonschema:"description=The complete content to write to the file"`
}

type WriteFileTool struct{}

func (WriteFileTool) Name() string        { return "write_file" }
func (WriteFileTool) DisplayName() string { return "Write file" }

func (t WriteFileTool) FormatAnnouncement() string {
	return announce(t.DisplayName())
}

func (t WriteFileTool) FormatResult(arguments string) string {
	args := decodeArguments(arguments)
	path := argString(args, "relativeFilePath")
	lang := strings.TrimPrefix(filepath.Ext(path), ".")
	return fmt.Sprintf("%s\n```%s\n%s\n```", callHeader(t.DisplayName(), path), lang, argString(args, "content"))
}

func (t WriteFileTool) Bind(ws Workspace) (tool.BaseTool, error) {
	return utils.InferTool(t.Name(), ToolDescription(t.Name(), "Write a file inside the project"),
		func(ctx context.Context, in *WriteFileInput) (*Output, error) {
			return WriteFile(ctx, ws, in)
		})
}

// WriteFile creates or overwrites a file under the workspace root.
func WriteFile(ctx context.Context, ws Workspace, in *WriteFileInput) (*Output, error) {
	events.Emit(ctx, events.LLMEventTool, events.NewInfo("WriteFile: starting"))

	if in == nil || strings.TrimSpace(in.RelativeFilePath) == "" {
		events.Emit(ctx, events.LLMEventTool, events.NewError("WriteFile: relativeFilePath is required"))
		return failure("format_error", "Format error: relativeFilePath is required"), nil
	}

	absPath, err := ws.Resolve(in.RelativeFilePath)
	if err != nil {
		events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("WriteFile: %v", err)))
		return failure("format_error", "Format error: %v", err), nil
	}
	display := ws.Rel(absPath)

	if info, err := os.Stat(absPath); err == nil && info.IsDir() {
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("WriteFile: path is a directory: %s", display)))
		return failure("is_directory", "Error: path is a directory: %s", display), nil
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("WriteFile: mkdir error: %v", err)))
		return nil, err
	}
	_, statErr := os.Stat(absPath)
	existed := statErr == nil

	if err := os.WriteFile(absPath, []byte(in.Content), 0o644); err != nil {
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("WriteFile: write error: %v", err)))
		return nil, err
	}

	events.Emit(ctx, events.LLMEventTool, events.NewToolEvent(events.EventInfo, fmt.Sprintf("WriteFile: wrote '%s'", display), "write", display))

	return &Output{
		Title:  display,
		Output: fmt.Sprintf("Wrote file: %s", display),
		Metadata: map[string]string{
			"filepath": display,
			"exists":   fmt.Sprintf("%t", existed),
			"bytes":    fmt.Sprintf("%d", len(in.Content)),
		},
	}, nil
}
