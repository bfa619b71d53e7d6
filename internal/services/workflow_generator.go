package services

import (
	"context"
	"errors"
	"fmt"

	"codemother/internal/llm/client"
	"codemother/internal/llm/memory"
	"codemother/internal/llm/tools"
	"codemother/internal/stream"
	"codemother/internal/workflow"
)

// WorkflowGenerator runs one-shot generations for the workflow's code generation step. It
// shares the chat path (backend plus stream engine) but keeps no history.
type WorkflowGenerator struct {
	backend    client.Backend
	engine     *stream.Engine
	registry   *tools.Registry
	outputRoot string
	// Sink receives the display stream; nil discards it.
	Sink stream.Sink
}

func NewWorkflowGenerator(backend client.Backend, engine *stream.Engine, registry *tools.Registry, outputRoot string) *WorkflowGenerator {
	return &WorkflowGenerator{backend: backend, engine: engine, registry: registry, outputRoot: outputRoot}
}

func (g *WorkflowGenerator) Generate(ctx context.Context, req workflow.GenerateRequest) (string, error) {
	system, err := client.SystemPrompt(req.Type)
	if err != nil {
		return "", err
	}
	creq := client.Request{SystemPrompt: system, Prompt: req.Prompt, Memory: memory.NewWindow(req.Type.MemoryCapacity())}
	if req.Type.UsesTools() {
		ws, err := tools.NewWorkspace(g.outputRoot, req.Type.DirName(req.AppID))
		if err != nil {
			return "", fmt.Errorf("prepare workspace: %w", err)
		}
		if creq.Tools, err = g.registry.Bind(ws); err != nil {
			return "", fmt.Errorf("bind tools: %w", err)
		}
	}

	evs, err := g.backend.Generate(client.WithCaller(ctx, req.AppID, 0), creq)
	if err != nil {
		return "", err
	}
	res, err := g.engine.Process(ctx, evs, stream.Request{AppID: req.AppID, Type: req.Type}, g.Sink)
	if err != nil {
		return "", err
	}
	if res.Dir == "" {
		return "", errors.New("generation produced no code")
	}
	return res.Dir, nil
}
