package workflow

import (
	"fmt"

	"codemother/internal/models"
)

// Step labels recorded in WorkflowContext.CurrentStep.
const (
	StepInit            = "init"
	StepImageCollection = "image_collection"
	StepPromptEnhance   = "prompt_enhancement"
	StepRouting         = "routing"
	StepCodeGeneration  = "code_generation"
	StepQualityCheck    = "quality_check"
	StepProjectBuild    = "project_build"
	StepGiveUp          = "give_up"
	StepCompleted       = "completed"
)

const (
	DefaultMaxRetries    = 3
	defaultRouteFallback = models.GenerationHTML
)

// WorkflowContext is the state of one workflow execution. It is owned by that execution and
// never shared.
type WorkflowContext struct {
	AppID            uint
	OriginalPrompt   string
	EnhancedPrompt   string
	CollectedImages  []models.ImageResource
	GenerationType   models.GenerationType
	GeneratedCodeDir string
	QualityResult    *models.QualityResult
	BuildResultDir   string
	CurrentStep      string

	// Attempts counts code generation runs so far.
	Attempts int
	// MaxRetries bounds regenerations after a failed quality check.
	MaxRetries int
	Failed     bool
	Error      string

	// nodeErr keeps the typed error of the node that stopped the run.
	nodeErr error
}

func (wc *WorkflowContext) fail(err error) error {
	wc.nodeErr = err
	return err
}

func (wc *WorkflowContext) String() string {
	return fmt.Sprintf("step=%s type=%s attempts=%d code=%s build=%s failed=%t",
		wc.CurrentStep, wc.GenerationType, wc.Attempts, wc.GeneratedCodeDir, wc.BuildResultDir, wc.Failed)
}

// OutputDir is the directory a caller should serve: the build output when there is one,
// the generated sources otherwise.
func (wc *WorkflowContext) OutputDir() string {
	if wc.BuildResultDir != "" {
		return wc.BuildResultDir
	}
	return wc.GeneratedCodeDir
}
