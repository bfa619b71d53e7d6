package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"codemother/internal/apperrors"

	"github.com/cloudwego/eino/components/tool"
)

// Descriptor describes how a tool call is shown to the user.
type Descriptor interface {
	Name() string
	DisplayName() string
	// FormatAnnouncement is shown the first time a call id is seen.
	FormatAnnouncement() string
	// FormatResult is shown once the call completes. arguments is the raw JSON the model sent.
	FormatResult(arguments string) string
}

// Tool is a Descriptor that can be bound to a workspace for execution.
type Tool interface {
	Descriptor
	Bind(ws Workspace) (tool.BaseTool, error)
}

// Registry is a static name -> tool lookup.
type Registry struct {
	byName map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.byName[t.Name()] = t
	}
	return r
}

// Default returns a registry with every file tool and web access.
func Default() *Registry {
	return NewRegistry(
		WriteFileTool{},
		ReadFileTool{},
		ModifyFileTool{},
		DeleteFileTool{},
		ReadDirTool{},
		ExitTool{},
		WebAccessTool{},
	)
}

// Resolve returns the descriptor for name or an error wrapping apperrors.ErrUnknownTool.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	if r != nil {
		if t, ok := r.byName[name]; ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownTool, name)
}

// Bind binds every registered tool to ws, in name order.
func (r *Registry) Bind(ws Workspace) ([]tool.BaseTool, error) {
	out := make([]tool.BaseTool, 0, len(r.byName))
	for _, name := range r.Names() {
		bt, err := r.byName[name].Bind(ws)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
		out = append(out, bt)
	}
	return out, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Placeholder stands in for tools the registry does not know.
type Placeholder struct {
	ToolName string
}

func (p Placeholder) Name() string        { return p.ToolName }
func (p Placeholder) DisplayName() string { return p.ToolName }

func (p Placeholder) FormatAnnouncement() string {
	return announce(p.ToolName)
}

func (p Placeholder) FormatResult(string) string {
	return "[Tool call] " + p.ToolName
}

func announce(display string) string {
	return "[Tool selected] " + display
}

func callHeader(display, path string) string {
	if strings.TrimSpace(path) == "" {
		return "[Tool call] " + display
	}
	return fmt.Sprintf("[Tool call] %s %s", display, path)
}

// decodeArguments reads the model's argument JSON leniently; malformed input yields an empty map.
func decodeArguments(arguments string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(arguments) == "" {
		return args
	}
	_ = json.Unmarshal([]byte(arguments), &args)
	return args
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func failure(code, format string, a ...any) *Output {
	return &Output{
		Output:   fmt.Sprintf(format, a...),
		Metadata: map[string]string{"error": code},
	}
}

// Output is the result every file tool returns to the model.
type Output struct {
	Title    string            `json:"title"`
	Output   string            `json:"output"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
