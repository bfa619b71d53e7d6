package tools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codemother/internal/events"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

const (
	defaultReadLimit = 2000
	maxLineLength    = 2000
)

type ReadFileInput struct {
	RelativeFilePath string `json:"relativeFilePath" jsonschema:"description=Path of the file relative to the project root"`
	// Offset is the 0-based line to start reading from.
	Offset int `json:"offset,omitempty" jsonschema:"description=The line number to start reading from (0-based)"`
	Limit  int `json:"limit,omitempty" jsonschema:"description=The number of lines to read (defaults to 2000)"`
}

type ReadFileTool struct{}

func (ReadFileTool) Name() string        { return "read_file" }
func (ReadFileTool) DisplayName() string { return "Read file" }

func (t ReadFileTool) FormatAnnouncement() string {
	return announce(t.DisplayName())
}

func (t ReadFileTool) FormatResult(arguments string) string {
	return callHeader(t.DisplayName(), argString(decodeArguments(arguments), "relativeFilePath"))
}

func (t ReadFileTool) Bind(ws Workspace) (tool.BaseTool, error) {
	return utils.InferTool(t.Name(), ToolDescription(t.Name(), "Read a file inside the project"),
		func(ctx context.Context, in *ReadFileInput) (*Output, error) {
			return ReadFile(ctx, ws, in)
		})
}

// ReadFile reads a text file within the workspace with paging and safety checks.
func ReadFile(ctx context.Context, ws Workspace, in *ReadFileInput) (*Output, error) {
	events.Emit(ctx, events.LLMEventTool, events.NewInfo("ReadFile: starting"))

	if in == nil || strings.TrimSpace(in.RelativeFilePath) == "" {
		events.Emit(ctx, events.LLMEventTool, events.NewError("ReadFile: relativeFilePath is required"))
		return failure("format_error", "Format error: relativeFilePath is required"), nil
	}

	absPath, err := ws.Resolve(in.RelativeFilePath)
	if err != nil {
		events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("ReadFile: %v", err)))
		return failure("format_error", "Format error: %v", err), nil
	}
	display := ws.Rel(absPath)

	fi, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			output := "File not found: " + display
			if suggestions := similarEntries(filepath.Dir(absPath), filepath.Base(absPath)); len(suggestions) > 0 {
				output += "\n\nDid you mean one of these?\n" + strings.Join(suggestions, "\n")
			}
			events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("ReadFile: not found '%s'", display)))
			out := failure("file_not_found", "%s", output)
			out.Title = display
			return out, nil
		}
		return nil, err
	}
	if fi.IsDir() {
		return failure("is_directory", "Error: path is a directory: %s", display), nil
	}
	if img := imageTypeByExt(absPath); img != "" {
		return failure("binary_file", "Error: %s is an image file of type %s", display, img), nil
	}
	isBin, err := isBinaryFile(absPath)
	if err != nil {
		return nil, err
	}
	if isBin {
		return failure("binary_file", "Error: cannot read binary file: %s", display), nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")

	limit := in.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	start := max(in.Offset, 0)
	start = min(start, len(lines))
	end := min(start+limit, len(lines))

	raw := make([]string, 0, end-start)
	for _, line := range lines[start:end] {
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "..."
		}
		raw = append(raw, line)
	}

	var b strings.Builder
	b.WriteString(strings.Join(raw, "\n"))
	if len(lines) > end {
		b.WriteString(fmt.Sprintf("\n\n(File has more lines. Use 'offset' parameter to read beyond line %d)", end))
	}

	events.Emit(ctx, events.LLMEventTool, events.NewToolEvent(events.EventInfo, fmt.Sprintf("ReadFile: read '%s'", display), "read", display))

	return &Output{
		Title:  display,
		Output: b.String(),
		Metadata: map[string]string{
			"filepath": display,
			"lines":    fmt.Sprintf("%d", len(raw)),
		},
	}, nil
}

// imageTypeByExt returns a human-readable image type for common image extensions, else "".
func imageTypeByExt(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".jpg", ".jpeg":
		return "JPEG"
	case ".png":
		return "PNG"
	case ".gif":
		return "GIF"
	case ".bmp":
		return "BMP"
	case ".webp":
		return "WebP"
	default:
		return ""
	}
}

// isBinaryFile performs a quick extension check, then a heuristic byte-scan
// of up to the first 4096 bytes to decide if a file is binary.
func isBinaryFile(p string) (bool, error) {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".zip", ".tar", ".gz", ".exe", ".dll", ".so", ".class", ".jar", ".war",
		".7z", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt", ".ods", ".odp",
		".bin", ".dat", ".obj", ".o", ".a", ".lib", ".wasm", ".pyc", ".pyo":
		return true, nil
	}

	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()

	// Stat to determine size and clamp buffer
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}
	if fi.Size() == 0 {
		return false, nil
	}

	// Read up to 4096 bytes
	const maxBuf = 4096
	r := bufio.NewReader(f)
	buf := make([]byte, 0, maxBuf)
	for len(buf) < maxBuf {
		chunk := maxBuf - len(buf)
		tmp := make([]byte, chunk)
		n, readErr := r.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return false, readErr
		}
	}
	if len(buf) == 0 {
		return false, nil
	}

	nonPrintable := 0
	for _, b := range buf {
		if b == 0x00 {
			return true, nil
		}
		if b < 9 || (b > 13 && b < 32) {
			nonPrintable++
		}
	}
	// If >30% non-printable characters, consider it binary
	return float64(nonPrintable)/float64(len(buf)) > 0.3, nil
}

// similarEntries returns up to 3 suggestions in the same directory based on substring matching.
func similarEntries(dir string, baseName string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	needle := strings.ToLower(baseName)
	var candidates []string
	for _, e := range entries {
		name := e.Name()
		lower := strings.ToLower(name)
		if strings.Contains(lower, needle) || strings.Contains(needle, lower) {
			candidates = append(candidates, name)
		}
	}
	sort.Strings(candidates)
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	return candidates
}
