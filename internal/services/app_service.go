package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"codemother/internal/apperrors"
	"codemother/internal/codegen"
	"codemother/internal/deploy"
	"codemother/internal/events"
	"codemother/internal/llm/client"
	"codemother/internal/logging"
	"codemother/internal/models"
	"codemother/internal/repositories"
	"codemother/internal/stream"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	appNameRunes        = 12
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
	exportScanLimit     = 200
)

type TypeRouter interface {
	Route(ctx context.Context, prompt string) (models.GenerationType, error)
}

type AppDeployer interface {
	Deploy(ctx context.Context, app *models.App) (*deploy.Deployment, error)
}

type AppService interface {
	Create(ctx context.Context, userID uint, initPrompt string) (*models.App, error)
	Get(ctx context.Context, appID, userID uint) (*models.App, error)
	List(ctx context.Context, userID uint, limit, offset int) ([]models.App, error)
	ChatToGenCode(ctx context.Context, appID, userID uint, message string) (*schema.StreamReader[stream.Chunk], error)
	Deploy(ctx context.Context, appID, userID uint) (string, error)
	Delete(ctx context.Context, appID, userID uint) error
	ExportCode(ctx context.Context, appID, userID uint) (string, error)
	ListHistory(ctx context.Context, appID, userID uint, beforeSequence int64, limit int) ([]models.Turn, error)
}

// AppServiceDeps wires the app service. Router and Deployer are optional.
type AppServiceDeps struct {
	Apps       repositories.AppRepository
	History    ChatHistoryService
	Handles    *HandleProvider
	Backend    client.Backend
	Engine     *stream.Engine
	Router     TypeRouter
	Deployer   AppDeployer
	OutputRoot string
	DeployRoot string
	ExportRoot string
}

type appService struct {
	AppServiceDeps
	log zerolog.Logger
}

func NewAppService(deps AppServiceDeps) AppService {
	return &appService{AppServiceDeps: deps, log: logging.Component("apps")}
}

func (s *appService) Create(ctx context.Context, userID uint, initPrompt string) (*models.App, error) {
	if userID == 0 {
		return nil, apperrors.Validation("userID is required")
	}
	initPrompt = strings.TrimSpace(initPrompt)
	if initPrompt == "" {
		return nil, apperrors.Validation("init prompt is required")
	}

	genType := models.GenerationHTML
	if s.Router != nil {
		t, err := s.Router.Route(ctx, initPrompt)
		if err != nil {
			s.log.Warn().Err(err).Msg("routing failed, creating a single html app")
		} else {
			genType = t
		}
	}

	app := &models.App{
		Name:        appName(initPrompt),
		InitPrompt:  initPrompt,
		CodeGenType: genType,
		UserID:      userID,
		Version:     1,
	}
	if err := s.Apps.Create(ctx, app); err != nil {
		return nil, apperrors.Persistence("create app", err)
	}
	s.log.Info().Uint("app_id", app.ID).Str("type", string(genType)).Msg("app created")
	return app, nil
}

func appName(prompt string) string {
	if utf8.RuneCountInString(prompt) <= appNameRunes {
		return prompt
	}
	return string([]rune(prompt)[:appNameRunes])
}

func (s *appService) Get(ctx context.Context, appID, userID uint) (*models.App, error) {
	if appID == 0 {
		return nil, apperrors.Validation("appID is required")
	}
	app, err := s.Apps.GetByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("app %d", appID))
	}
	if app.UserID != userID {
		return nil, apperrors.Forbidden("app belongs to another user")
	}
	return app, nil
}

func (s *appService) List(ctx context.Context, userID uint, limit, offset int) ([]models.App, error) {
	if userID == 0 {
		return nil, apperrors.Validation("userID is required")
	}
	return s.Apps.ListByUser(ctx, userID, limit, offset)
}

// ChatToGenCode locks the app's generation handle, stores message, replays the app's history
// into the handle and streams the reply. The handle stays locked until the reply has been
// persisted.
func (s *appService) ChatToGenCode(ctx context.Context, appID, userID uint, message string) (*schema.StreamReader[stream.Chunk], error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.Validation("message is required")
	}
	app, err := s.Get(ctx, appID, userID)
	if err != nil {
		return nil, err
	}
	if !app.CodeGenType.Valid() {
		return nil, models.UnsupportedType(app.CodeGenType)
	}

	h, release, err := s.Handles.Acquire(ctx, appID, app.CodeGenType)
	if err != nil {
		return nil, err
	}
	// the user turn must land after any reply still being persisted under the lock
	if err := s.History.AddMessage(ctx, appID, userID, message); err != nil {
		release()
		return nil, err
	}
	ctx = events.WithSession(ctx, HandleKey(appID, app.CodeGenType))
	ctx = client.WithCaller(ctx, appID, userID)
	loaded := s.History.LoadIntoMemory(ctx, appID, h.Memory, app.CodeGenType.HistoryWindow())
	s.log.Debug().Uint("app_id", appID).Int("turns", loaded).Msg("starting generation")

	evs, err := s.Backend.Generate(ctx, client.Request{
		SystemPrompt: h.SystemPrompt,
		Prompt:       message,
		Memory:       h.Memory,
		Tools:        h.Tools,
	})
	if err != nil {
		release()
		if ferr := s.History.AddFailure(context.WithoutCancel(ctx), appID, userID, "AI reply failed: "+err.Error()); ferr != nil {
			s.log.Error().Err(ferr).Uint("app_id", appID).Msg("failure notice not persisted")
		}
		return nil, err
	}

	req := stream.Request{AppID: appID, UserID: userID, Type: app.CodeGenType, Persist: true, Build: true}
	return s.Engine.Run(ctx, evs, req, func(stream.Result, error) { release() }), nil
}

func (s *appService) Deploy(ctx context.Context, appID, userID uint) (string, error) {
	app, err := s.Get(ctx, appID, userID)
	if err != nil {
		return "", err
	}
	if s.Deployer == nil {
		return "", fmt.Errorf("%w: deployment is not configured", apperrors.ErrConfiguration)
	}
	if app.DeployKey == "" {
		var lookupErr error
		key, err := deploy.NewDeployKey(func(k string) bool {
			exists, err := s.Apps.ExistsDeployKey(ctx, k)
			if err != nil {
				lookupErr = err
				return true
			}
			return exists
		})
		if err != nil {
			return "", fmt.Errorf("allocate deploy key: %w", errors.Join(err, lookupErr))
		}
		app.DeployKey = key
	}

	dep, err := s.Deployer.Deploy(ctx, app)
	if err != nil {
		return "", err
	}
	now := time.Now()
	app.Version = dep.Version + 1
	app.DeployedAt = &now
	if err := s.Apps.Update(ctx, app); err != nil {
		return "", apperrors.Persistence("record deployment", err)
	}
	return dep.URL, nil
}

// Delete removes an app with its history, generated sources and deployments. History and
// file cleanup failures are logged and do not stop the deletion.
func (s *appService) Delete(ctx context.Context, appID, userID uint) error {
	app, err := s.Get(ctx, appID, userID)
	if err != nil {
		return err
	}
	log := s.log.With().Uint("app_id", appID).Logger()

	if err := s.History.DeleteByApp(ctx, appID); err != nil {
		log.Error().Err(err).Msg("deleting chat history failed")
	}

	dirs := make([]string, 0, len(models.GenerationTypes())+1)
	for _, t := range models.GenerationTypes() {
		dirs = append(dirs, filepath.Join(s.OutputRoot, t.DirName(appID)))
	}
	if app.DeployKey != "" && s.DeployRoot != "" {
		dirs = append(dirs, filepath.Join(s.DeployRoot, app.DeployKey))
	}
	var g errgroup.Group
	for _, dir := range dirs {
		g.Go(func() error { return os.RemoveAll(dir) })
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("removing generated files failed")
	}

	if s.Handles != nil {
		s.Handles.Invalidate(appID)
	}
	if err := s.Apps.Delete(ctx, appID); err != nil {
		return apperrors.Persistence("delete app", err)
	}
	log.Info().Msg("app deleted")
	return nil
}

// ExportCode writes the newest complete code reply of the app as a markdown document and
// returns its path.
func (s *appService) ExportCode(ctx context.Context, appID, userID uint) (string, error) {
	app, err := s.Get(ctx, appID, userID)
	if err != nil {
		return "", err
	}
	if app.CodeGenType.UsesTools() {
		return "", apperrors.Validationf("%s apps are exported from their project directory", app.CodeGenType)
	}
	turns, err := s.History.ListDisplay(ctx, appID, 0, exportScanLimit)
	if err != nil {
		return "", err
	}
	var reply string
	for _, t := range turns {
		if t.Kind == models.TurnAIText && codegen.HasRequiredBlocks(app.CodeGenType, t.Payload) {
			reply = t.Payload
			break
		}
	}
	if reply == "" {
		return "", apperrors.NotFound("a reply with complete code")
	}

	if err := os.MkdirAll(s.ExportRoot, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.ExportRoot, codegen.SanitizeFileName(app.Name)+".md")
	doc := "# " + app.Name + "\n\n" + codegen.ExportMarkdown(reply)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func (s *appService) ListHistory(ctx context.Context, appID, userID uint, beforeSequence int64, limit int) ([]models.Turn, error) {
	if _, err := s.Get(ctx, appID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	return s.History.ListDisplay(ctx, appID, beforeSequence, limit)
}
