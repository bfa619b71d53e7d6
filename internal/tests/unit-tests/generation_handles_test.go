package unit_tests

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"codemother/internal/apperrors"
	"codemother/internal/llm/tools"
	"codemother/internal/models"
	"codemother/internal/services"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandleProvider(t *testing.T) (*services.HandleProvider, string) {
	t.Helper()
	root := t.TempDir()
	p := services.NewHandleProvider(tools.Default(), root, services.HandleOptions{})
	t.Cleanup(p.Close)
	return p, root
}

func TestHandleProvider_ReusesHandlePerAppAndType(t *testing.T) {
	p, _ := newHandleProvider(t)
	ctx := context.Background()

	h1, release, err := p.Acquire(ctx, 1, models.GenerationHTML)
	require.NoError(t, err)
	release()
	h2, release, err := p.Acquire(ctx, 1, models.GenerationHTML)
	require.NoError(t, err)
	release()
	other, release, err := p.Acquire(ctx, 1, models.GenerationMultiFile)
	require.NoError(t, err)
	release()

	assert.Same(t, h1, h2)
	assert.NotSame(t, h1, other)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "1_html", services.HandleKey(1, models.GenerationHTML))
	assert.NotEmpty(t, h1.SystemPrompt)
	assert.Empty(t, h1.Tools)
	assert.Equal(t, 40, h1.Memory.Max())
}

func TestHandleProvider_VueHandleBindsTools(t *testing.T) {
	p, root := newHandleProvider(t)

	h, release, err := p.Acquire(context.Background(), 8, models.GenerationVueProject)
	require.NoError(t, err)
	defer release()

	assert.Len(t, h.Tools, len(tools.Default().Names()))
	assert.Equal(t, 100, h.Memory.Max())
	assert.DirExists(t, p.Workspace(8, models.GenerationVueProject))
	assert.Equal(t, filepath.Join(root, "vue_project_8"), p.Workspace(8, models.GenerationVueProject))
}

func TestHandleProvider_RejectsUnknownType(t *testing.T) {
	p, _ := newHandleProvider(t)
	_, _, err := p.Acquire(context.Background(), 1, "react")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedType)
}

func TestHandleProvider_SerializesGenerationsPerHandle(t *testing.T) {
	p, _ := newHandleProvider(t)
	ctx := context.Background()

	_, release, err := p.Acquire(ctx, 3, models.GenerationHTML)
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		_, r, err := p.Acquire(ctx, 3, models.GenerationHTML)
		if err != nil {
			close(acquired)
			return
		}
		acquired <- r
	}()

	select {
	case <-acquired:
		t.Fatal("second generation started while the first held the handle")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case r, ok := <-acquired:
		require.True(t, ok)
		r()
	case <-time.After(2 * time.Second):
		t.Fatal("handle was not released")
	}
}

func TestHandleProvider_CancelledContext(t *testing.T) {
	p, _ := newHandleProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.Acquire(ctx, 3, models.GenerationHTML)
	assert.ErrorIs(t, err, context.Canceled)

	// the lock was given back
	_, release, err := p.Acquire(context.Background(), 3, models.GenerationHTML)
	require.NoError(t, err)
	release()
}

func TestHandleProvider_InvalidateDropsEveryType(t *testing.T) {
	p, _ := newHandleProvider(t)
	ctx := context.Background()
	for _, gt := range []models.GenerationType{models.GenerationHTML, models.GenerationMultiFile} {
		_, release, err := p.Acquire(ctx, 5, gt)
		require.NoError(t, err)
		release()
	}
	_, release, err := p.Acquire(ctx, 6, models.GenerationHTML)
	require.NoError(t, err)
	release()

	p.Invalidate(5)
	assert.Equal(t, 1, p.Len())
}

func TestHandleProvider_MemoryKeepsWidenedHistory(t *testing.T) {
	p, _ := newHandleProvider(t)
	h, release, err := p.Acquire(context.Background(), 3, models.GenerationVueProject)
	require.NoError(t, err)
	defer release()

	// the window edge lands on a tool result, so the loader replays one turn more
	turns := chatTurns(53)
	turns[1], turns[2] = toolPair(t, "edge")
	history := services.NewChatHistoryService(memoryLog(turns, nil))

	n := history.LoadIntoMemory(context.Background(), 3, h.Memory, models.GenerationVueProject.HistoryWindow())

	assert.Equal(t, 51, n)
	msgs := h.Memory.Messages()
	require.Len(t, msgs, 51)
	assert.Equal(t, schema.Assistant, msgs[0].Role)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "edge", msgs[0].ToolCalls[0].ID)
	assert.Equal(t, schema.Tool, msgs[1].Role)
}
