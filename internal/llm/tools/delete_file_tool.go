package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"codemother/internal/events"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

// ProtectedPatterns lists project files the model may not delete.
var ProtectedPatterns = []string{
	"package.json",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"vite.config.*",
	"vue.config.js",
	"tsconfig*.json",
	"index.html",
	"src/main.*",
	"src/App.vue",
	".gitignore",
	"README.md",
}

type DeleteFileInput struct {
	RelativeFilePath string `json:"relativeFilePath" jsonschema:"description=Path of the file relative to the project root"`
}

type DeleteFileTool struct{}

func (DeleteFileTool) Name() string        { return "delete_file" }
func (DeleteFileTool) DisplayName() string { return "Delete file" }

func (t DeleteFileTool) FormatAnnouncement() string {
	return announce(t.DisplayName())
}

func (t DeleteFileTool) FormatResult(arguments string) string {
	return callHeader(t.DisplayName(), argString(decodeArguments(arguments), "relativeFilePath"))
}

func (t DeleteFileTool) Bind(ws Workspace) (tool.BaseTool, error) {
	return utils.InferTool(t.Name(), ToolDescription(t.Name(), "Delete a project file"),
		func(ctx context.Context, in *DeleteFileInput) (*Output, error) {
			return DeleteFile(ctx, ws, in)
		})
}

// IsProtected reports whether rel (slash separated, relative to the project root) matches
// a protected pattern.
func IsProtected(rel string) bool {
	for _, pattern := range ProtectedPatterns {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), strings.ToLower(rel)); ok {
			return true
		}
	}
	return false
}

func DeleteFile(ctx context.Context, ws Workspace, in *DeleteFileInput) (*Output, error) {
	events.Emit(ctx, events.LLMEventTool, events.NewInfo("DeleteFile: starting"))

	if in == nil || strings.TrimSpace(in.RelativeFilePath) == "" {
		events.Emit(ctx, events.LLMEventTool, events.NewError("DeleteFile: relativeFilePath is required"))
		return failure("format_error", "Format error: relativeFilePath is required"), nil
	}

	absPath, err := ws.Resolve(in.RelativeFilePath)
	if err != nil {
		events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("DeleteFile: %v", err)))
		return failure("format_error", "Format error: %v", err), nil
	}
	display := ws.Rel(absPath)

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("DeleteFile: file does not exist: %s", display)))
			return failure("file_not_found", "Warning: file does not exist, nothing to delete: %s", display), nil
		}
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("DeleteFile: stat error: %v", err)))
		return nil, err
	}
	if info.IsDir() {
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("DeleteFile: path is a directory: %s", display)))
		return failure("is_directory", "Error: path is a directory: %s", display), nil
	}
	if IsProtected(display) {
		events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("DeleteFile: refusing to delete protected file '%s'", display)))
		return failure("protected", "Error: %s is a protected project file and cannot be deleted", display), nil
	}

	if err := os.Remove(absPath); err != nil {
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("DeleteFile: delete error: %v", err)))
		return nil, err
	}

	events.Emit(ctx, events.LLMEventTool, events.NewToolEvent(events.EventInfo, fmt.Sprintf("DeleteFile: done for '%s'", display), "delete", display))

	return &Output{
		Title:  display,
		Output: fmt.Sprintf("Deleted file: %s", display),
		Metadata: map[string]string{
			"filepath": display,
			"deleted":  "true",
		},
	}, nil
}
