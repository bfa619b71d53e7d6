package client

import (
	"context"
	"fmt"
	"strings"

	"codemother/internal/apperrors"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Providers lists the supported model providers.
func Providers() []string {
	return []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// ModelConfig selects and authenticates one chat model.
type ModelConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-5-mini",
	ProviderAnthropic: "claude-sonnet-4-5",
	ProviderGemini:    "gemini-2.5-flash",
}

// NewChatModel builds a tool-calling chat model for the configured provider.
func NewChatModel(ctx context.Context, cfg ModelConfig) (model.ToolCallingChatModel, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: no API key for provider %q", apperrors.ErrConfiguration, provider)
	}
	name := strings.TrimSpace(cfg.Model)
	if name == "" {
		name = defaultModels[provider]
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	switch provider {
	case ProviderOpenAI:
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  cfg.APIKey,
			Model:   name,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return m, nil
	case ProviderAnthropic:
		conf := &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     name,
			MaxTokens: maxTokens,
		}
		if cfg.BaseURL != "" {
			conf.BaseURL = &cfg.BaseURL
		}
		m, err := claude.NewChatModel(ctx, conf)
		if err != nil {
			return nil, fmt.Errorf("create claude model: %w", err)
		}
		return m, nil
	case ProviderGemini:
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		m, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: gc,
			Model:  name,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", apperrors.ErrConfiguration, cfg.Provider)
	}
}
