package quality

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"codemother/internal/apperrors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type replyModel struct {
	reply string
	err   error
	got   []*schema.Message
}

func (m *replyModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.got = in
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *replyModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not used")
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestParseResult(t *testing.T) {
	res, err := ParseResult("```json\n{\"isValid\": false, \"issues\": [\"missing footer\"]}\n```")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"missing footer"}, res.Issues)

	res, err = ParseResult(`{"isValid": true, "issues": [], "suggestions": ["add alt text"]}`)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"add alt text"}, res.Suggestions)

	_, err = ParseResult(`{"isValid": "yes"}`)
	assert.Error(t, err)
	_, err = ParseResult("looks fine to me")
	assert.Error(t, err)
}

func TestCollectSources_SkipsDependencies(t *testing.T) {
	root := t.TempDir()
	write(t, root, "index.html", "<div id=app></div>")
	write(t, root, "src/App.vue", "<template/>")
	write(t, root, "node_modules/vue/index.js", "module.exports = {}")
	write(t, root, "dist/assets/app.js", "minified")
	write(t, root, "package-lock.json", "{}")
	write(t, root, "notes.txt", "ignored")

	code, err := CollectSources(root)
	require.NoError(t, err)
	assert.Contains(t, code, "// File: index.html\n<div id=app></div>")
	assert.Contains(t, code, "// File: src/App.vue")
	assert.NotContains(t, code, "node_modules")
	assert.NotContains(t, code, "minified")
	assert.NotContains(t, code, "package-lock")
	assert.NotContains(t, code, "ignored")
}

func TestChecker_CheckDir(t *testing.T) {
	root := t.TempDir()
	write(t, root, "index.html", "<h1>hi</h1>")
	chat := &replyModel{reply: `{"isValid": true, "issues": []}`}
	checker, err := NewChecker(chat)
	require.NoError(t, err)

	res, err := checker.CheckDir(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.Len(t, chat.got, 2)
	assert.Equal(t, schema.System, chat.got[0].Role)
	assert.Contains(t, chat.got[1].Content, "<h1>hi</h1>")
}

func TestChecker_EmptyCodeIsInvalidWithoutCallingModel(t *testing.T) {
	chat := &replyModel{}
	checker, err := NewChecker(chat)
	require.NoError(t, err)

	res, err := checker.Check(context.Background(), "  ")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Nil(t, chat.got)
}

func TestChecker_BackendFailure(t *testing.T) {
	checker, err := NewChecker(&replyModel{err: errors.New("429")})
	require.NoError(t, err)
	_, err = checker.Check(context.Background(), "<p/>")
	assert.ErrorIs(t, err, apperrors.ErrBackend)

	checker, err = NewChecker(&replyModel{reply: "sure"})
	require.NoError(t, err)
	_, err = checker.Check(context.Background(), "<p/>")
	assert.ErrorIs(t, err, apperrors.ErrBackend)
}
