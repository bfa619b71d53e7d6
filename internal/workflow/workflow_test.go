package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"codemother/internal/apperrors"
	"codemother/internal/events"
	"codemother/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	events.SetCustomEmitter(func(context.Context, string, events.Event) {})
	goleak.VerifyTestMain(m)
}

type fakeImages struct{ imgs []models.ImageResource }

func (f fakeImages) Collect(context.Context, string) []models.ImageResource { return f.imgs }

type fakeRouter struct {
	t   models.GenerationType
	err error
}

func (f fakeRouter) Route(context.Context, string) (models.GenerationType, error) { return f.t, f.err }

type fakeGenerator struct {
	mu    sync.Mutex
	reqs  []GenerateRequest
	block bool
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join("/out", req.Type.DirName(req.AppID)), nil
}

func (f *fakeGenerator) requests() []GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GenerateRequest(nil), f.reqs...)
}

// scriptedQuality returns its results in order, repeating the last one.
type scriptedQuality struct {
	mu      sync.Mutex
	results []*models.QualityResult
	err     error
	calls   int
}

func (q *scriptedQuality) CheckDir(context.Context, string) (*models.QualityResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	i := q.calls - 1
	if i >= len(q.results) {
		i = len(q.results) - 1
	}
	return q.results[i], nil
}

type fakeBuilder struct {
	dirs []string
	err  error
}

func (b *fakeBuilder) Build(_ context.Context, dir string) error {
	b.dirs = append(b.dirs, dir)
	return b.err
}

var (
	valid   = &models.QualityResult{IsValid: true}
	invalid = &models.QualityResult{IsValid: false, Issues: []string{"button does nothing"}}
)

func newWorkflow(t *testing.T, deps Deps, opts Options) *Workflow {
	t.Helper()
	w, err := New(context.Background(), deps, opts)
	require.NoError(t, err)
	return w
}

func TestSingleFileSkipsBuild(t *testing.T) {
	gen := &fakeGenerator{}
	builder := &fakeBuilder{}
	w := newWorkflow(t, Deps{
		Images:    fakeImages{imgs: []models.ImageResource{{Category: models.ImageContent, Description: "cake", URL: "https://img/cake.jpg"}}},
		Router:    fakeRouter{t: models.GenerationHTML},
		Generator: gen,
		Quality:   &scriptedQuality{results: []*models.QualityResult{valid}},
		Builder:   builder,
	}, Options{})

	wc, err := w.Execute(context.Background(), 4, "a bakery page")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationHTML, wc.GenerationType)
	assert.Equal(t, "/out/html_4", wc.GeneratedCodeDir)
	assert.Empty(t, wc.BuildResultDir)
	assert.Empty(t, builder.dirs)
	assert.Equal(t, StepCompleted, wc.CurrentStep)
	assert.Equal(t, 1, wc.Attempts)
	assert.Contains(t, wc.EnhancedPrompt, "https://img/cake.jpg")
	require.Len(t, gen.requests(), 1)
	assert.Equal(t, wc.EnhancedPrompt, gen.requests()[0].Prompt)
}

func TestFrameworkProjectBuilds(t *testing.T) {
	builder := &fakeBuilder{}
	w := newWorkflow(t, Deps{
		Router:    fakeRouter{t: models.GenerationVueProject},
		Generator: &fakeGenerator{},
		Quality:   &scriptedQuality{results: []*models.QualityResult{valid}},
		Builder:   builder,
	}, Options{})

	wc, err := w.Execute(context.Background(), 2, "a todo app")
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/vue_project_2"}, builder.dirs)
	assert.Equal(t, filepath.Join("/out/vue_project_2", "dist"), wc.BuildResultDir)
	assert.Equal(t, wc.BuildResultDir, wc.OutputDir())
}

func TestBuildFailureFallsBackToSources(t *testing.T) {
	w := newWorkflow(t, Deps{
		Router:    fakeRouter{t: models.GenerationVueProject},
		Generator: &fakeGenerator{},
		Builder:   &fakeBuilder{err: errors.New("npm exploded")},
	}, Options{})

	wc, err := w.Execute(context.Background(), 2, "a todo app")
	require.NoError(t, err)
	assert.False(t, wc.Failed)
	assert.Equal(t, "/out/vue_project_2", wc.BuildResultDir)
}

func TestFailedQualityRegeneratesOnce(t *testing.T) {
	gen := &fakeGenerator{}
	quality := &scriptedQuality{results: []*models.QualityResult{invalid, valid}}
	w := newWorkflow(t, Deps{Router: fakeRouter{t: models.GenerationMultiFile}, Generator: gen, Quality: quality}, Options{})

	wc, err := w.Execute(context.Background(), 1, "portfolio")
	require.NoError(t, err)
	assert.Equal(t, 2, wc.Attempts)
	assert.Equal(t, 2, quality.calls)
	reqs := gen.requests()
	require.Len(t, reqs, 2)
	assert.NotContains(t, reqs[0].Prompt, "button does nothing")
	assert.Contains(t, reqs[1].Prompt, "- button does nothing")
	assert.False(t, wc.Failed)
}

func TestPersistentFailureGivesUp(t *testing.T) {
	gen := &fakeGenerator{}
	w := newWorkflow(t, Deps{
		Router:    fakeRouter{t: models.GenerationHTML},
		Generator: gen,
		Quality:   &scriptedQuality{results: []*models.QualityResult{invalid}},
	}, Options{MaxRetries: 2})

	wc, err := w.Execute(context.Background(), 1, "anything")
	require.NoError(t, err)
	assert.True(t, wc.Failed)
	assert.Equal(t, StepGiveUp, wc.CurrentStep)
	assert.Equal(t, 3, wc.Attempts)
	assert.Len(t, gen.requests(), 3)
	assert.Contains(t, wc.Error, "3 attempts")
}

func TestRoutingFailureDefaultsToHTML(t *testing.T) {
	w := newWorkflow(t, Deps{Router: fakeRouter{err: errors.New("model down")}, Generator: &fakeGenerator{}}, Options{})

	wc, err := w.Execute(context.Background(), 8, "something")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationHTML, wc.GenerationType)
}

func TestQualityErrorCountsAsPass(t *testing.T) {
	w := newWorkflow(t, Deps{
		Router:    fakeRouter{t: models.GenerationHTML},
		Generator: &fakeGenerator{},
		Quality:   &scriptedQuality{err: errors.New("429")},
	}, Options{})

	wc, err := w.Execute(context.Background(), 1, "x")
	require.NoError(t, err)
	assert.True(t, wc.QualityResult.IsValid)
	assert.Equal(t, 1, wc.Attempts)
}

func TestGenerationTimeout(t *testing.T) {
	w := newWorkflow(t, Deps{Generator: &fakeGenerator{block: true}}, Options{GenerationTimeout: 20 * time.Millisecond})

	wc, err := w.Execute(context.Background(), 1, "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, apperrors.ErrBackend)
	assert.True(t, wc.Failed)
	assert.Equal(t, StepCodeGeneration, wc.CurrentStep)
}

func TestGenerationError(t *testing.T) {
	w := newWorkflow(t, Deps{Generator: &fakeGenerator{err: errors.New("quota")}}, Options{})
	_, err := w.Execute(context.Background(), 1, "x")
	assert.ErrorIs(t, err, apperrors.ErrBackend)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}

func TestExecuteValidation(t *testing.T) {
	w := newWorkflow(t, Deps{Generator: &fakeGenerator{}}, Options{})
	_, err := w.Execute(context.Background(), 1, "  ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = New(context.Background(), Deps{}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestStepEvents(t *testing.T) {
	var mu sync.Mutex
	var steps []string
	events.SetCustomEmitter(func(_ context.Context, name string, evt events.Event) {
		if name == events.WorkflowStep {
			mu.Lock()
			steps = append(steps, evt.Metadata["step"])
			mu.Unlock()
		}
	})
	t.Cleanup(func() { events.SetCustomEmitter(func(context.Context, string, events.Event) {}) })

	w := newWorkflow(t, Deps{Router: fakeRouter{t: models.GenerationHTML}, Generator: &fakeGenerator{}}, Options{})
	_, err := w.Execute(context.Background(), 1, "x")
	require.NoError(t, err)
	assert.Equal(t, "image_collection,prompt_enhancement,routing,code_generation,quality_check", strings.Join(steps, ","))
}
