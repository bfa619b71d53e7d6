package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"codemother/internal/llm/client"
	"codemother/internal/llm/memory"
	"codemother/internal/llm/tools"
	"codemother/internal/logging"
	"codemother/internal/models"
	"codemother/internal/session"

	"github.com/cloudwego/eino/components/tool"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxHandles      = 1000
	DefaultHandleWriteTTL  = 30 * time.Minute
	DefaultHandleAccessTTL = 10 * time.Minute
)

// GenerationHandle is the per-(app, type) generation session: its conversation memory,
// bound tools and system prompt.
type GenerationHandle struct {
	AppID        uint
	Type         models.GenerationType
	Memory       *memory.Window
	Tools        []tool.BaseTool
	SystemPrompt string
}

// HandleKey is the cache key of a handle.
func HandleKey(appID uint, t models.GenerationType) string {
	return fmt.Sprintf("%d_%s", appID, t)
}

type HandleOptions struct {
	MaxEntries int
	WriteTTL   time.Duration
	AccessTTL  time.Duration
}

// HandleProvider caches generation handles and serializes generations per handle.
type HandleProvider struct {
	cache      *session.Cache[string, *GenerationHandle]
	registry   *tools.Registry
	outputRoot string
	log        zerolog.Logger
}

func NewHandleProvider(registry *tools.Registry, outputRoot string, opts HandleOptions) *HandleProvider {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxHandles
	}
	if opts.WriteTTL <= 0 {
		opts.WriteTTL = DefaultHandleWriteTTL
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultHandleAccessTTL
	}
	p := &HandleProvider{registry: registry, outputRoot: outputRoot, log: logging.Component("handles")}
	p.cache = session.New(session.Options[string, *GenerationHandle]{
		MaxEntries:      opts.MaxEntries,
		WriteTTL:        opts.WriteTTL,
		AccessTTL:       opts.AccessTTL,
		CleanupInterval: time.Minute,
		OnEvict: func(key string, _ *GenerationHandle, reason session.EvictReason) {
			p.log.Debug().Str("key", key).Str("reason", string(reason)).Msg("generation handle evicted")
		},
	})
	return p
}

// Acquire returns the handle for (appID, t) with its lock held. The caller must call release
// once the generation using the handle has finished.
func (p *HandleProvider) Acquire(ctx context.Context, appID uint, t models.GenerationType) (*GenerationHandle, func(), error) {
	if !t.Valid() {
		return nil, nil, models.UnsupportedType(t)
	}
	key := HandleKey(appID, t)
	release := p.cache.Lock(key)
	if err := ctx.Err(); err != nil {
		release()
		return nil, nil, err
	}
	h, err := p.cache.GetOrCreate(key, func() (*GenerationHandle, error) {
		return p.create(appID, t)
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return h, release, nil
}

func (p *HandleProvider) create(appID uint, t models.GenerationType) (*GenerationHandle, error) {
	prompt, err := client.SystemPrompt(t)
	if err != nil {
		return nil, err
	}
	h := &GenerationHandle{
		AppID:        appID,
		Type:         t,
		Memory:       memory.NewWindow(t.MemoryCapacity()),
		SystemPrompt: prompt,
	}
	if t.UsesTools() {
		ws, err := tools.NewWorkspace(p.outputRoot, t.DirName(appID))
		if err != nil {
			return nil, fmt.Errorf("prepare workspace: %w", err)
		}
		if h.Tools, err = p.registry.Bind(ws); err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}
	p.log.Debug().Uint("app_id", appID).Str("type", string(t)).Msg("generation handle created")
	return h, nil
}

// Invalidate drops every cached handle of appID.
func (p *HandleProvider) Invalidate(appID uint) {
	for _, t := range models.GenerationTypes() {
		p.cache.Invalidate(HandleKey(appID, t))
	}
}

// Workspace is the directory tool-driven generations of appID write into.
func (p *HandleProvider) Workspace(appID uint, t models.GenerationType) string {
	return filepath.Join(p.outputRoot, t.DirName(appID))
}

func (p *HandleProvider) Len() int { return p.cache.Len() }

func (p *HandleProvider) Close() { p.cache.Close() }
