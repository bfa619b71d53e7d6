package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"codemother/internal/builder"
	"codemother/internal/config"
	"codemother/internal/database"
	"codemother/internal/deploy"
	"codemother/internal/images"
	"codemother/internal/llm/client"
	"codemother/internal/llm/tools"
	"codemother/internal/logging"
	"codemother/internal/quality"
	"codemother/internal/services"
	"codemother/internal/stream"
	"codemother/internal/workflow"
)

// App owns the process-wide resources the commands run against.
type App struct {
	cfg      *config.Config
	log      zerolog.Logger
	services *services.Services
	builder  *builder.Builder
	backend  client.Backend
	registry *tools.Registry
	chat     *chatModel
	dbClose  func() error
}

// chatModel is set when the command talks to a model.
type chatModel struct {
	router  *client.TypeRouter
	checker *quality.Checker
}

// NewApp opens the database and wires the services. withModel resolves the provider API key
// and connects the chat model; commands that only read or move stored data skip it.
func NewApp(ctx context.Context, cfg *config.Config, withModel bool) (*App, error) {
	a := &App{
		cfg:      cfg,
		log:      logging.Component("app"),
		registry: tools.Default(),
		builder:  builder.New(builder.WithTimeouts(cfg.Build.InstallTimeout, cfg.Build.BuildTimeout)),
	}

	db, err := database.Init(database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		a.dbClose = sqlDB.Close
	}

	opts := services.Options{
		Builder:    a.builder,
		Deployer:   deploy.NewDeployer(cfg.Storage.OutputRoot, cfg.Storage.DeployRoot, cfg.Storage.DeployHost, a.builder),
		Registry:   a.registry,
		OutputRoot: cfg.Storage.OutputRoot,
		DeployRoot: cfg.Storage.DeployRoot,
		ExportRoot: cfg.Storage.ExportRoot,
		Handles: services.HandleOptions{
			MaxEntries: cfg.Cache.MaxEntries,
			WriteTTL:   cfg.Cache.WriteTTL,
			AccessTTL:  cfg.Cache.AccessTTL,
		},
	}
	if withModel {
		if err := a.connectModel(ctx); err != nil {
			a.Close()
			return nil, err
		}
		opts.Backend = a.backend
		opts.Router = a.chat.router
	}
	a.services = services.NewServices(db, opts)
	return a, nil
}

func (a *App) connectModel(ctx context.Context) error {
	apiKey, err := services.NewKeyringService().ResolveAPIKey(a.cfg.LLM.Provider, a.cfg.LLM.APIKey)
	if err != nil {
		return err
	}
	m, err := client.NewChatModel(ctx, client.ModelConfig{
		Provider:  a.cfg.LLM.Provider,
		Model:     a.cfg.LLM.Model,
		APIKey:    apiKey,
		BaseURL:   a.cfg.LLM.BaseURL,
		MaxTokens: a.cfg.LLM.MaxTokens,
	})
	if err != nil {
		return err
	}
	checker, err := quality.NewChecker(m)
	if err != nil {
		return err
	}
	backend := client.NewModelBackend(m)
	backend.Monitor = client.NewMonitor()
	a.backend = backend
	a.chat = &chatModel{router: client.NewTypeRouter(m), checker: checker}
	return nil
}

// Workflow assembles the one-shot generation workflow. Display chunks go to sink.
func (a *App) Workflow(ctx context.Context, sink stream.Sink) (*workflow.Workflow, error) {
	if a.chat == nil {
		return nil, fmt.Errorf("workflow needs a chat model")
	}
	gen := services.NewWorkflowGenerator(a.backend, a.services.Engine, a.registry, a.cfg.Storage.OutputRoot)
	gen.Sink = sink
	return workflow.New(ctx, workflow.Deps{
		Images:    a.imageCollector(),
		Router:    a.chat.router,
		Generator: gen,
		Quality:   a.chat.checker,
		Builder:   a.builder,
	}, workflow.Options{
		MaxRetries:        a.cfg.Generation.MaxRetries,
		GenerationTimeout: a.cfg.Generation.Timeout,
	})
}

func (a *App) imageCollector() workflow.ImageCollector {
	var sources []images.Source
	if key := a.cfg.Images.PexelsAPIKey; key != "" {
		s := images.NewPexelsSource(key)
		s.Limit = a.cfg.Images.Limit
		sources = append(sources, s)
	}
	if id := a.cfg.Images.UndrawBuildID; id != "" {
		s := images.NewUndrawSource(id)
		s.Limit = a.cfg.Images.Limit
		sources = append(sources, s)
	}
	if len(sources) == 0 {
		a.log.Debug().Msg("no image sources configured")
		return nil
	}
	return images.NewCollector(sources...)
}

// Close waits for background builds and releases the database.
func (a *App) Close() {
	if a.services != nil {
		a.services.Close()
	}
	a.builder.Wait()
	if a.dbClose != nil {
		if err := a.dbClose(); err != nil {
			a.log.Error().Err(err).Msg("failed to close database")
		}
	}
}

func ensureRoots(cfg *config.Config) error {
	for _, dir := range []string{cfg.Storage.OutputRoot, cfg.Storage.DeployRoot, cfg.Storage.ExportRoot} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
