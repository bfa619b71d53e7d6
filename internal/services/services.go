package services

import (
	"gorm.io/gorm"

	"codemother/internal/codegen"
	"codemother/internal/llm/client"
	"codemother/internal/llm/tools"
	"codemother/internal/repositories"
	"codemother/internal/stream"
)

// Options carries the collaborators and storage roots the services are built from.
// Router and Deployer may be nil.
type Options struct {
	Backend    client.Backend
	Router     TypeRouter
	Builder    stream.ProjectBuilder
	Deployer   AppDeployer
	Registry   *tools.Registry
	Handles    HandleOptions
	OutputRoot string
	DeployRoot string
	ExportRoot string
}

// Services aggregates the domain services backed by the database.
type Services struct {
	Apps    AppService
	History ChatHistoryService
	Handles *HandleProvider
	Engine  *stream.Engine
	Keys    *KeyringService
}

// NewServices constructs the service container using repositories backed by db.
func NewServices(db *gorm.DB, opts Options) *Services {
	turnRepo := repositories.NewTurnRepository(db)
	appRepo := repositories.NewAppRepository(db)

	registry := opts.Registry
	if registry == nil {
		registry = tools.Default()
	}
	engine := stream.NewEngine(registry, turnRepo, codegen.NewFacade(opts.OutputRoot), opts.Builder, opts.OutputRoot)
	history := NewChatHistoryService(turnRepo)
	handles := NewHandleProvider(registry, opts.OutputRoot, opts.Handles)

	return &Services{
		Apps: NewAppService(AppServiceDeps{
			Apps:       appRepo,
			History:    history,
			Handles:    handles,
			Backend:    opts.Backend,
			Engine:     engine,
			Router:     opts.Router,
			Deployer:   opts.Deployer,
			OutputRoot: opts.OutputRoot,
			DeployRoot: opts.DeployRoot,
			ExportRoot: opts.ExportRoot,
		}),
		History: history,
		Handles: handles,
		Engine:  engine,
		Keys:    NewKeyringService(),
	}
}

// Close stops background cleanup of cached generation handles.
func (s *Services) Close() {
	s.Handles.Close()
}
