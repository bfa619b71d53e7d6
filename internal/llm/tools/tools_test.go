package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codemother/internal/apperrors"
	"codemother/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	events.SetCustomEmitter(func(context.Context, string, events.Event) {})
	os.Exit(m.Run())
}

func newWorkspace(t *testing.T) Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir(), "vue_project_1")
	require.NoError(t, err)
	return ws
}

func TestRegistry_ResolveKnownAndUnknown(t *testing.T) {
	r := Default()

	d, err := r.Resolve("write_file")
	require.NoError(t, err)
	assert.Equal(t, "[Tool selected] Write file", d.FormatAnnouncement())

	_, err = r.Resolve("rm_rf")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnknownTool)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	assert.Equal(t, []string{"delete_file", "exit", "modify_file", "read_dir", "read_file", "web_access", "write_file"}, r.Names())
}

func TestRegistry_BindAllTools(t *testing.T) {
	ws := newWorkspace(t)
	bound, err := Default().Bind(ws)
	require.NoError(t, err)
	require.Len(t, bound, 7)

	info, err := bound[len(bound)-1].Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "write_file", info.Name)
	assert.NotEmpty(t, info.Desc)
}

func TestFormatResult(t *testing.T) {
	write := WriteFileTool{}.FormatResult(`{"relativeFilePath":"src/App.vue","content":"<template/>"}`)
	assert.Equal(t, "[Tool call] Write file src/App.vue\n```vue\n<template/>\n```", write)

	modify := ModifyFileTool{}.FormatResult(`{"relativeFilePath":"a.js","oldContent":"x","newContent":"y"}`)
	assert.Contains(t, modify, "[Tool call] Modify file a.js")
	assert.Contains(t, modify, "Before\n```\nx\n```")
	assert.Contains(t, modify, "After\n```\ny\n```")

	assert.Equal(t, "[Tool call] Read directory .", ReadDirTool{}.FormatResult(`{}`))
	assert.Equal(t, "[Tool call] Delete file", DeleteFileTool{}.FormatResult("not json"))

	p := Placeholder{ToolName: "mystery"}
	assert.Equal(t, "[Tool selected] mystery", p.FormatAnnouncement())
	assert.Equal(t, "[Tool call] mystery", p.FormatResult(`{}`))
}

func TestWorkspace_RejectsEscapes(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.Resolve("../outside.txt")
	assert.Error(t, err)
	_, err = ws.Resolve("/etc/passwd")
	assert.Error(t, err)

	abs, err := ws.Resolve("src/main.js")
	require.NoError(t, err)
	assert.Equal(t, "src/main.js", ws.Rel(abs))
}

func TestWriteReadModifyDelete(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t)

	out, err := WriteFile(ctx, ws, &WriteFileInput{RelativeFilePath: "src/components/Hello.vue", Content: "<p>hello</p>\n"})
	require.NoError(t, err)
	assert.Empty(t, out.Metadata["error"])
	assert.FileExists(t, filepath.Join(ws.Root, "src", "components", "Hello.vue"))

	read, err := ReadFile(ctx, ws, &ReadFileInput{RelativeFilePath: "src/components/Hello.vue"})
	require.NoError(t, err)
	assert.Contains(t, read.Output, "<p>hello</p>")

	mod, err := ModifyFile(ctx, ws, &ModifyFileInput{RelativeFilePath: "src/components/Hello.vue", OldContent: "hello", NewContent: "bye"})
	require.NoError(t, err)
	assert.Equal(t, "1", mod.Metadata["replacements"])
	data, err := os.ReadFile(filepath.Join(ws.Root, "src", "components", "Hello.vue"))
	require.NoError(t, err)
	assert.Equal(t, "<p>bye</p>\n", string(data))

	miss, err := ModifyFile(ctx, ws, &ModifyFileInput{RelativeFilePath: "src/components/Hello.vue", OldContent: "absent", NewContent: "x"})
	require.NoError(t, err)
	assert.Equal(t, "not_found", miss.Metadata["error"])

	del, err := DeleteFile(ctx, ws, &DeleteFileInput{RelativeFilePath: "src/components/Hello.vue"})
	require.NoError(t, err)
	assert.Equal(t, "true", del.Metadata["deleted"])
	assert.NoFileExists(t, filepath.Join(ws.Root, "src", "components", "Hello.vue"))
}

func TestReadFile_NotFoundSuggestsSiblings(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Root, "index.html"), []byte("<html></html>"), 0o644))

	out, err := ReadFile(ctx, ws, &ReadFileInput{RelativeFilePath: "index"})
	require.NoError(t, err)
	assert.Equal(t, "file_not_found", out.Metadata["error"])
	assert.Contains(t, out.Output, "index.html")
}

func TestDeleteFile_RefusesProtectedFiles(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t)
	for _, name := range []string{"package.json", "vite.config.ts", "tsconfig.app.json", "src/main.ts", "src/App.vue"} {
		p := filepath.Join(ws.Root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))

		out, err := DeleteFile(ctx, ws, &DeleteFileInput{RelativeFilePath: name})
		require.NoError(t, err)
		assert.Equal(t, "protected", out.Metadata["error"], name)
		assert.FileExists(t, p)
	}
	assert.False(t, IsProtected("src/components/Nav.vue"))
}

func TestReadDir_SkipsIgnoredFolders(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t)
	for _, name := range []string{"package.json", "src/App.vue", "src/components/Nav.vue", "node_modules/vue/index.js", "dist/index.html"} {
		p := filepath.Join(ws.Root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	out, err := ReadDir(ctx, ws, &ReadDirInput{})
	require.NoError(t, err)
	assert.Equal(t, "3", out.Metadata["files_count"])
	assert.Contains(t, out.Output, "  src/\n")
	assert.Contains(t, out.Output, "Nav.vue")
	assert.False(t, strings.Contains(out.Output, "node_modules"))
	assert.False(t, strings.Contains(out.Output, "dist"))
}
