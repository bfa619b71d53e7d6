package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"codemother/internal/apperrors"
	"codemother/internal/events"
	"codemother/internal/images"
	"codemother/internal/logging"
	"codemother/internal/models"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"
)

const (
	nodeImageCollector = "image_collector"
	nodePromptEnhancer = "prompt_enhancer"
	nodeRouter         = "router"
	nodeCodeGenerator  = "code_generator"
	nodeQualityCheck   = "code_quality_check"
	nodeProjectBuilder = "project_builder"

	DefaultGenerationTimeout = 10 * time.Minute
)

type ImageCollector interface {
	Collect(ctx context.Context, prompt string) []models.ImageResource
}

type Router interface {
	Route(ctx context.Context, prompt string) (models.GenerationType, error)
}

// GenerateRequest is one code generation run inside the workflow.
type GenerateRequest struct {
	AppID  uint
	Type   models.GenerationType
	Prompt string
}

// CodeGenerator produces code for a request and returns the directory it was written to.
type CodeGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type QualityChecker interface {
	CheckDir(ctx context.Context, dir string) (*models.QualityResult, error)
}

type ProjectBuilder interface {
	Build(ctx context.Context, dir string) error
}

// Deps are the collaborators the workflow nodes call. Images, Router, Quality and Builder
// are optional.
type Deps struct {
	Images    ImageCollector
	Router    Router
	Generator CodeGenerator
	Quality   QualityChecker
	Builder   ProjectBuilder
}

type Options struct {
	MaxRetries        int
	GenerationTimeout time.Duration
}

// Workflow runs image collection, prompt enhancement, routing, generation, quality gating
// and the optional build as a compiled graph.
type Workflow struct {
	deps   Deps
	opts   Options
	runner compose.Runnable[*WorkflowContext, *WorkflowContext]
	log    zerolog.Logger
}

func New(ctx context.Context, deps Deps, opts Options) (*Workflow, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("%w: workflow needs a code generator", apperrors.ErrConfiguration)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = DefaultGenerationTimeout
	}
	w := &Workflow{deps: deps, opts: opts, log: logging.Component("workflow")}
	runner, err := w.compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile workflow: %w", err)
	}
	w.runner = runner
	return w, nil
}

func (w *Workflow) compile(ctx context.Context) (compose.Runnable[*WorkflowContext, *WorkflowContext], error) {
	g := compose.NewGraph[*WorkflowContext, *WorkflowContext]()

	nodes := []struct {
		key string
		fn  func(context.Context, *WorkflowContext) (*WorkflowContext, error)
	}{
		{nodeImageCollector, w.collectImages},
		{nodePromptEnhancer, w.enhancePrompt},
		{nodeRouter, w.route},
		{nodeCodeGenerator, w.generate},
		{nodeQualityCheck, w.checkQuality},
		{nodeProjectBuilder, w.build},
	}
	for _, n := range nodes {
		if err := g.AddLambdaNode(n.key, compose.InvokableLambda(n.fn), compose.WithNodeName(n.key)); err != nil {
			return nil, err
		}
	}

	edges := [][2]string{
		{compose.START, nodeImageCollector},
		{nodeImageCollector, nodePromptEnhancer},
		{nodePromptEnhancer, nodeRouter},
		{nodeRouter, nodeCodeGenerator},
		{nodeCodeGenerator, nodeQualityCheck},
		{nodeProjectBuilder, compose.END},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	branch := compose.NewGraphBranch(w.afterQualityCheck, map[string]bool{
		nodeProjectBuilder: true,
		nodeCodeGenerator:  true,
		compose.END:        true,
	})
	if err := g.AddBranch(nodeQualityCheck, branch); err != nil {
		return nil, err
	}

	// every attempt runs generator and checker once
	maxSteps := len(nodes) + 2*(w.opts.MaxRetries+1) + 4
	return g.Compile(ctx,
		compose.WithGraphName("codegen_workflow"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(maxSteps),
	)
}

// Execute runs the workflow for a fresh prompt.
func (w *Workflow) Execute(ctx context.Context, appID uint, prompt string) (*WorkflowContext, error) {
	return w.ExecuteContext(ctx, &WorkflowContext{AppID: appID, OriginalPrompt: prompt})
}

// ExecuteContext runs the workflow starting from wc and returns the final context. On error
// the returned context is the state reached so far, with Failed and Error set.
func (w *Workflow) ExecuteContext(ctx context.Context, wc *WorkflowContext) (*WorkflowContext, error) {
	if wc == nil || strings.TrimSpace(wc.OriginalPrompt) == "" {
		return wc, apperrors.Validation("prompt is required")
	}
	if wc.MaxRetries <= 0 {
		wc.MaxRetries = w.opts.MaxRetries
	}
	wc.CurrentStep = StepInit
	start := time.Now()
	log := w.log.With().Uint("app_id", wc.AppID).Logger()
	log.Info().Msg("workflow started")

	out, err := w.runner.Invoke(ctx, wc)
	if err != nil {
		wc.Failed = true
		wc.Error = err.Error()
		log.Error().Err(err).Str("step", wc.CurrentStep).Msg("workflow failed")
		events.Emit(ctx, events.WorkflowFailed, events.NewStepEvent(events.EventError, wc.CurrentStep, err.Error()))
		if wc.nodeErr != nil {
			return wc, wc.nodeErr
		}
		return wc, apperrors.Backend("workflow", err)
	}
	if out.Failed {
		events.Emit(ctx, events.WorkflowFailed, events.NewStepEvent(events.EventError, out.CurrentStep, out.Error))
	} else {
		out.CurrentStep = StepCompleted
		events.Emit(ctx, events.WorkflowCompleted, events.NewStepEvent(events.EventSuccess, StepCompleted, "workflow completed").
			With("dir", out.OutputDir()))
	}
	log.Info().Dur("elapsed", time.Since(start)).Str("result", out.String()).Msg("workflow finished")
	return out, nil
}

func (w *Workflow) enter(ctx context.Context, wc *WorkflowContext, step, msg string) {
	wc.CurrentStep = step
	w.log.Info().Uint("app_id", wc.AppID).Str("step", step).Msg(msg)
	events.Emit(ctx, events.WorkflowStep, events.NewStepEvent(events.EventInfo, step, msg))
}

func (w *Workflow) collectImages(ctx context.Context, wc *WorkflowContext) (*WorkflowContext, error) {
	w.enter(ctx, wc, StepImageCollection, "collecting images")
	if w.deps.Images != nil {
		wc.CollectedImages = w.deps.Images.Collect(ctx, wc.OriginalPrompt)
	}
	return wc, nil
}

func (w *Workflow) enhancePrompt(ctx context.Context, wc *WorkflowContext) (*WorkflowContext, error) {
	w.enter(ctx, wc, StepPromptEnhance, "enhancing prompt")
	wc.EnhancedPrompt = EnhancePrompt(wc.OriginalPrompt, wc.CollectedImages)
	return wc, nil
}

// EnhancePrompt appends the collected image list to prompt.
func EnhancePrompt(prompt string, imgs []models.ImageResource) string {
	list := images.Markdown(imgs)
	if list == "" {
		return prompt
	}
	return prompt + "\n\n## " + list + "\nUse these images where they fit the page content."
}

func (w *Workflow) route(ctx context.Context, wc *WorkflowContext) (*WorkflowContext, error) {
	w.enter(ctx, wc, StepRouting, "choosing generation type")
	if wc.GenerationType.Valid() {
		return wc, nil
	}
	wc.GenerationType = defaultRouteFallback
	if w.deps.Router == nil {
		return wc, nil
	}
	t, err := w.deps.Router.Route(ctx, wc.EnhancedPrompt)
	if err != nil || !t.Valid() {
		w.log.Warn().Err(err).Str("routed", string(t)).Msg("routing failed, using single html file")
		return wc, nil
	}
	wc.GenerationType = t
	return wc, nil
}

type generated struct {
	dir string
	err error
}

func (w *Workflow) generate(ctx context.Context, wc *WorkflowContext) (*WorkflowContext, error) {
	wc.Attempts++
	w.enter(ctx, wc, StepCodeGeneration, fmt.Sprintf("generating %s (attempt %d)", wc.GenerationType.Text(), wc.Attempts))

	req := GenerateRequest{AppID: wc.AppID, Type: wc.GenerationType, Prompt: regenerationPrompt(wc)}
	genCtx, cancel := context.WithTimeout(ctx, w.opts.GenerationTimeout)
	defer cancel()

	done := make(chan generated, 1)
	go func() {
		dir, err := w.deps.Generator.Generate(genCtx, req)
		done <- generated{dir: dir, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return wc, wc.fail(fmt.Errorf("%w: code generation exceeded %s", apperrors.ErrTimeout, w.opts.GenerationTimeout))
			}
			return wc, wc.fail(apperrors.Backend("code generation", res.err))
		}
		wc.GeneratedCodeDir = res.dir
		return wc, nil
	case <-genCtx.Done():
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return wc, wc.fail(fmt.Errorf("%w: code generation exceeded %s", apperrors.ErrTimeout, w.opts.GenerationTimeout))
		}
		return wc, wc.fail(apperrors.Backend("code generation", genCtx.Err()))
	}
}

// regenerationPrompt carries the previous attempt's issues into the next one.
func regenerationPrompt(wc *WorkflowContext) string {
	prompt := wc.EnhancedPrompt
	if prompt == "" {
		prompt = wc.OriginalPrompt
	}
	q := wc.QualityResult
	if q == nil || q.IsValid || len(q.Issues) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nThe previous attempt failed review. Fix these issues:\n")
	for _, issue := range q.Issues {
		b.WriteString("- ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	for _, s := range q.Suggestions {
		b.WriteString("- suggestion: ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

func (w *Workflow) checkQuality(ctx context.Context, wc *WorkflowContext) (*WorkflowContext, error) {
	w.enter(ctx, wc, StepQualityCheck, "checking generated code")
	if w.deps.Quality == nil {
		wc.QualityResult = &models.QualityResult{IsValid: true}
		return wc, nil
	}
	res, err := w.deps.Quality.CheckDir(ctx, wc.GeneratedCodeDir)
	if err != nil {
		// an unavailable reviewer does not block delivery
		w.log.Warn().Err(err).Uint("app_id", wc.AppID).Msg("quality check failed, accepting generated code")
		res = &models.QualityResult{IsValid: true, Suggestions: []string{"quality check unavailable: " + err.Error()}}
	}
	wc.QualityResult = res
	return wc, nil
}

func (w *Workflow) afterQualityCheck(_ context.Context, wc *WorkflowContext) (string, error) {
	q := wc.QualityResult
	if q == nil || !q.IsValid {
		if wc.Attempts > wc.MaxRetries {
			wc.Failed = true
			wc.Error = fmt.Sprintf("generated code still failed review after %d attempts", wc.Attempts)
			wc.CurrentStep = StepGiveUp
			w.log.Warn().Uint("app_id", wc.AppID).Int("attempts", wc.Attempts).Msg("giving up on quality retries")
			return compose.END, nil
		}
		w.log.Info().Uint("app_id", wc.AppID).Int("attempts", wc.Attempts).Msg("quality check failed, regenerating")
		return nodeCodeGenerator, nil
	}
	if wc.GenerationType.NeedsBuild() {
		return nodeProjectBuilder, nil
	}
	return compose.END, nil
}

func (w *Workflow) build(ctx context.Context, wc *WorkflowContext) (*WorkflowContext, error) {
	w.enter(ctx, wc, StepProjectBuild, "building project")
	wc.BuildResultDir = wc.GeneratedCodeDir
	if w.deps.Builder == nil || !wc.GenerationType.NeedsBuild() {
		return wc, nil
	}
	if err := w.deps.Builder.Build(ctx, wc.GeneratedCodeDir); err != nil {
		w.log.Error().Err(err).Uint("app_id", wc.AppID).Msg("project build failed, returning source directory")
		return wc, nil
	}
	wc.BuildResultDir = filepath.Join(wc.GeneratedCodeDir, "dist")
	return wc, nil
}
