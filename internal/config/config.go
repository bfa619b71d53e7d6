package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"codemother/internal/apperrors"
	"codemother/internal/database"
	"codemother/internal/llm/client"
)

const (
	AppName   = "codemother"
	EnvPrefix = "CODEMOTHER"
)

// Config is read by viper from defaults, an optional config.yaml and CODEMOTHER_* variables.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Generation GenerationConfig `mapstructure:"generation"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Build      BuildConfig      `mapstructure:"build"`
	Images     ImagesConfig     `mapstructure:"images"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// LLMConfig selects the chat model. An empty APIKey is looked up in the OS keyring.
type LLMConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type StorageConfig struct {
	OutputRoot string `mapstructure:"output_root"`
	DeployRoot string `mapstructure:"deploy_root"`
	ExportRoot string `mapstructure:"export_root"`
	DeployHost string `mapstructure:"deploy_host"`
}

type GenerationConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	WriteTTL   time.Duration `mapstructure:"write_ttl"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
}

type BuildConfig struct {
	InstallTimeout time.Duration `mapstructure:"install_timeout"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout"`
}

type ImagesConfig struct {
	PexelsAPIKey  string `mapstructure:"pexels_api_key"`
	UndrawBuildID string `mapstructure:"undraw_build_id"`
	Limit         int    `mapstructure:"limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	if database.IsDevelopment() {
		v.SetDefault("log.format", "console")
	} else {
		v.SetDefault("log.format", "json")
	}

	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.path", "")
	v.SetDefault("database.dsn", "")

	v.SetDefault("llm.provider", client.ProviderOpenAI)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 8192)

	v.SetDefault("storage.output_root", filepath.Join("tmp", "code_output"))
	v.SetDefault("storage.deploy_root", filepath.Join("tmp", "code_deploy"))
	v.SetDefault("storage.export_root", filepath.Join("tmp", "code_export"))
	v.SetDefault("storage.deploy_host", "http://localhost")

	v.SetDefault("generation.max_retries", 3)
	v.SetDefault("generation.timeout", "10m")

	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.write_ttl", "30m")
	v.SetDefault("cache.access_ttl", "10m")

	v.SetDefault("build.install_timeout", "5m")
	v.SetDefault("build.build_timeout", "3m")

	v.SetDefault("images.pexels_api_key", "")
	v.SetDefault("images.undraw_build_id", "")
	v.SetDefault("images.limit", 6)
}

// Load reads the configuration. path may name a config file; when empty, config.yaml is
// searched in the working directory and in ~/.codemother, and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+AppName))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LLM.Provider) {
	case client.ProviderOpenAI, client.ProviderAnthropic, client.ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	switch strings.ToLower(c.Database.Driver) {
	case database.DriverSQLite, database.DriverSQLitePure:
	case database.DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	if c.Storage.OutputRoot == "" {
		errs = append(errs, errors.New("storage.output_root is required"))
	}
	if c.Generation.MaxRetries < 0 {
		errs = append(errs, errors.New("generation.max_retries must not be negative"))
	}
	if c.Generation.Timeout <= 0 {
		errs = append(errs, errors.New("generation.timeout must be positive"))
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, errors.New("cache.max_entries must be positive"))
	}
	if c.Build.InstallTimeout <= 0 || c.Build.BuildTimeout <= 0 {
		errs = append(errs, errors.New("build timeouts must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperrors.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}
