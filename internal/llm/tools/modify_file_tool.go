package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"codemother/internal/events"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/sergi/go-diff/diffmatchpatch"
)

type ModifyFileInput struct {
	RelativeFilePath string `json:"relativeFilePath" jsonschema:"description=Path of the file relative to the project root"`
	OldContent       string `json:"oldContent" jsonschema:"description=Exact text to replace"`
	NewContent       string `json:"newContent" jsonschema:"description=Replacement text"`
}

type ModifyFileTool struct{}

func (ModifyFileTool) Name() string        { return "modify_file" }
func (ModifyFileTool) DisplayName() string { return "Modify file" }

func (t ModifyFileTool) FormatAnnouncement() string {
	return announce(t.DisplayName())
}

func (t ModifyFileTool) FormatResult(arguments string) string {
	args := decodeArguments(arguments)
	return fmt.Sprintf("%s\n\nBefore\n```\n%s\n```\n\nAfter\n```\n%s\n```",
		callHeader(t.DisplayName(), argString(args, "relativeFilePath")),
		argString(args, "oldContent"),
		argString(args, "newContent"))
}

func (t ModifyFileTool) Bind(ws Workspace) (tool.BaseTool, error) {
	return utils.InferTool(t.Name(), ToolDescription(t.Name(), "Replace text in a project file"),
		func(ctx context.Context, in *ModifyFileInput) (*Output, error) {
			return ModifyFile(ctx, ws, in)
		})
}

// ModifyFile replaces every occurrence of OldContent with NewContent and reports a patch.
func ModifyFile(ctx context.Context, ws Workspace, in *ModifyFileInput) (*Output, error) {
	events.Emit(ctx, events.LLMEventTool, events.NewInfo("ModifyFile: starting"))

	if in == nil || strings.TrimSpace(in.RelativeFilePath) == "" {
		events.Emit(ctx, events.LLMEventTool, events.NewError("ModifyFile: relativeFilePath is required"))
		return failure("format_error", "Format error: relativeFilePath is required"), nil
	}
	if in.OldContent == "" {
		return failure("format_error", "Format error: oldContent is required"), nil
	}
	if in.OldContent == in.NewContent {
		return failure("format_error", "Format error: oldContent and newContent must be different"), nil
	}

	absPath, err := ws.Resolve(in.RelativeFilePath)
	if err != nil {
		events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("ModifyFile: %v", err)))
		return failure("format_error", "Format error: %v", err), nil
	}
	display := ws.Rel(absPath)

	info, err := os.Stat(absPath)
	if err != nil || !info.Mode().IsRegular() {
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("ModifyFile: not a file '%s'", display)))
		return failure("file_not_found", "Error: file does not exist or is not a file: %s", display), nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	original := string(data)
	count := strings.Count(original, in.OldContent)
	if count == 0 {
		events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("ModifyFile: oldContent not found in '%s'", display)))
		return failure("not_found", "Warning: oldContent not found, file unchanged: %s", display), nil
	}
	modified := strings.ReplaceAll(original, in.OldContent, in.NewContent)

	if err := os.WriteFile(absPath, []byte(modified), info.Mode().Perm()); err != nil {
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("ModifyFile: write error: %v", err)))
		return nil, err
	}

	events.Emit(ctx, events.LLMEventTool, events.NewToolEvent(events.EventInfo, fmt.Sprintf("ModifyFile: modified '%s'", display), "modify", display))

	return &Output{
		Title:  display,
		Output: fmt.Sprintf("Modified file: %s\n\n%s", display, unifiedPatch(original, modified)),
		Metadata: map[string]string{
			"filepath":     display,
			"replacements": fmt.Sprintf("%d", count),
		},
	}, nil
}

// unifiedPatch renders the change as a compact patch text.
func unifiedPatch(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(before, diffs))
}
