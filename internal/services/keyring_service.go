package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"codemother/internal/apperrors"

	"github.com/zalando/go-keyring"
)

const serviceName = "codemother"

// KeyringService keeps provider API keys in the OS keyring. The keyring cannot enumerate
// entries, so the stored provider names are tracked in providers.json under ConfigDir.
type KeyringService struct {
	ConfigDir string
}

// NewKeyringService tracks providers under the user config dir.
func NewKeyringService() *KeyringService {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return &KeyringService{ConfigDir: filepath.Join(dir, serviceName)}
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func (s *KeyringService) StoreAPIKey(provider, apiKey string) error {
	provider = normalizeProvider(provider)
	if provider == "" {
		return apperrors.Validation("provider is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return apperrors.Validation("API key is empty")
	}
	if err := keyring.Set(serviceName, provider, apiKey); err != nil {
		return fmt.Errorf("store key for %s: %w", provider, err)
	}
	return s.addProvider(provider)
}

func (s *KeyringService) GetAPIKey(provider string) (string, error) {
	provider = normalizeProvider(provider)
	if provider == "" {
		return "", apperrors.Validation("provider is required")
	}
	key, err := keyring.Get(serviceName, provider)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", apperrors.NotFound("API key for " + provider)
	}
	return key, err
}

func (s *KeyringService) DeleteAPIKey(provider string) error {
	provider = normalizeProvider(provider)
	if provider == "" {
		return apperrors.Validation("provider is required")
	}
	if err := keyring.Delete(serviceName, provider); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete key for %s: %w", provider, err)
	}
	return s.removeProvider(provider)
}

// ListProviders returns the providers that still have a key in the keyring.
func (s *KeyringService) ListProviders() ([]string, error) {
	providers, err := s.loadProviders()
	if err != nil {
		return nil, err
	}
	var results []string
	for _, provider := range providers {
		if _, err := keyring.Get(serviceName, provider); err != nil {
			continue
		}
		results = append(results, provider)
	}
	return results, nil
}

// ResolveAPIKey prefers an explicitly configured key and falls back to the keyring.
func (s *KeyringService) ResolveAPIKey(provider, configured string) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	key, err := s.GetAPIKey(provider)
	if err != nil {
		return "", fmt.Errorf("%w: no API key configured for %q: %w", apperrors.ErrConfiguration, normalizeProvider(provider), err)
	}
	return key, nil
}

func (s *KeyringService) providersPath() (string, error) {
	if err := os.MkdirAll(s.ConfigDir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(s.ConfigDir, "providers.json"), nil
}

func (s *KeyringService) loadProviders() ([]string, error) {
	path, err := s.providersPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var providers []string
	if err := json.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return providers, nil
}

func (s *KeyringService) saveProviders(providers []string) error {
	path, err := s.providersPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(providers, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *KeyringService) addProvider(provider string) error {
	providers, err := s.loadProviders()
	if err != nil {
		return err
	}
	if slices.Contains(providers, provider) {
		return nil
	}
	return s.saveProviders(append(providers, provider))
}

func (s *KeyringService) removeProvider(provider string) error {
	providers, err := s.loadProviders()
	if err != nil {
		return err
	}
	return s.saveProviders(slices.DeleteFunc(providers, func(p string) bool { return p == provider }))
}
