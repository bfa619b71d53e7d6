package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"codemother/internal/events"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns are gitignore-style rules applied to every listing.
var DefaultIgnorePatterns = []string{
	"node_modules/",
	".git/",
	"dist/",
	"build/",
	"coverage/",
	".cache/",
	".vite/",
	".idea/",
	".vscode/",
	"tmp/",
	"*.log",
	".DS_Store",
}

const listLimit = 200

var errListLimit = errors.New("list limit reached")

type ReadDirInput struct {
	RelativeDirPath string `json:"relativeDirPath,omitempty" jsonschema:"description=Directory relative to the project root; empty lists the whole project"`
}

type ReadDirTool struct{}

func (ReadDirTool) Name() string        { return "read_dir" }
func (ReadDirTool) DisplayName() string { return "Read directory" }

func (t ReadDirTool) FormatAnnouncement() string {
	return announce(t.DisplayName())
}

func (t ReadDirTool) FormatResult(arguments string) string {
	dir := argString(decodeArguments(arguments), "relativeDirPath")
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return callHeader(t.DisplayName(), dir)
}

func (t ReadDirTool) Bind(ws Workspace) (tool.BaseTool, error) {
	return utils.InferTool(t.Name(), ToolDescription(t.Name(), "List the project's directory tree"),
		func(ctx context.Context, in *ReadDirInput) (*Output, error) {
			return ReadDir(ctx, ws, in)
		})
}

// ReadDir renders an indented tree of the directory, skipping ignored entries. A .gitignore
// at the project root is honored as well.
func ReadDir(ctx context.Context, ws Workspace, in *ReadDirInput) (*Output, error) {
	events.Emit(ctx, events.LLMEventTool, events.NewInfo("ReadDir: starting"))

	req := "."
	if in != nil && strings.TrimSpace(in.RelativeDirPath) != "" {
		req = strings.TrimSpace(in.RelativeDirPath)
	}
	searchPath, err := ws.Resolve(req)
	if err != nil {
		events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("ReadDir: %v", err)))
		return failure("format_error", "Format error: %v", err), nil
	}
	display := ws.Rel(searchPath)

	info, err := os.Stat(searchPath)
	if err != nil || !info.IsDir() {
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("ReadDir: not a directory: %s", display)))
		return failure("format_error", "Format error: path is not a directory: %s", display), nil
	}

	matcher := ignoreMatcher(ws)

	var files []string
	err = filepath.WalkDir(searchPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == searchPath {
			return nil
		}
		// rules are rooted at the workspace, not at the listed directory
		fromRoot := ws.Rel(p)
		if d.IsDir() {
			if matcher.MatchesPath(fromRoot + "/") {
				return fs.SkipDir
			}
			return nil
		}
		if matcher.MatchesPath(fromRoot) {
			return nil
		}
		rel, _ := filepath.Rel(searchPath, p)
		files = append(files, filepath.ToSlash(rel))
		if len(files) >= listLimit {
			return errListLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errListLimit) {
		events.Emit(ctx, events.LLMEventTool, events.NewError(fmt.Sprintf("ReadDir: traversal error: %v", err)))
		return failure("format_error", "Format error: failed to traverse directory: %v", err), nil
	}

	var b strings.Builder
	b.WriteString(display)
	b.WriteString("/\n")
	b.WriteString(renderTree(files))

	events.Emit(ctx, events.LLMEventTool, events.NewToolEvent(events.EventInfo, fmt.Sprintf("ReadDir: %d files listed for '%s'", len(files), display), "list", display))
	return &Output{
		Title:  display,
		Output: b.String(),
		Metadata: map[string]string{
			"files_count": fmt.Sprintf("%d", len(files)),
			"limited":     fmt.Sprintf("%v", len(files) >= listLimit),
		},
	}, nil
}

func ignoreMatcher(ws Workspace) *ignore.GitIgnore {
	gitignore := filepath.Join(ws.Root, ".gitignore")
	if _, err := os.Stat(gitignore); err == nil {
		if m, err := ignore.CompileIgnoreFileAndLines(gitignore, DefaultIgnorePatterns...); err == nil {
			return m
		}
	}
	return ignore.CompileIgnoreLines(DefaultIgnorePatterns...)
}

// renderTree turns slash-separated file paths into an indented tree, directories first.
func renderTree(files []string) string {
	dirs := map[string]struct{}{".": {}}
	filesByDir := map[string][]string{}
	for _, f := range files {
		dir := path.Dir(f)
		for d := dir; d != "." && d != "/"; d = path.Dir(d) {
			dirs[d] = struct{}{}
		}
		filesByDir[dir] = append(filesByDir[dir], path.Base(f))
	}

	childrenOf := func(parent string) []string {
		var children []string
		for d := range dirs {
			if d != parent && d != "." && path.Dir(d) == parent {
				children = append(children, d)
			}
		}
		sort.Strings(children)
		return children
	}

	var render func(dir string, depth int, out *strings.Builder)
	render = func(dir string, depth int, out *strings.Builder) {
		if depth > 0 {
			out.WriteString(strings.Repeat("  ", depth))
			out.WriteString(path.Base(dir))
			out.WriteString("/\n")
		}
		for _, child := range childrenOf(dir) {
			render(child, depth+1, out)
		}
		names := filesByDir[dir]
		sort.Strings(names)
		for _, name := range names {
			out.WriteString(strings.Repeat("  ", depth+1))
			out.WriteString(name)
			out.WriteByte('\n')
		}
	}

	var out strings.Builder
	render(".", 0, &out)
	return out.String()
}
