//go:build prod

package database

import (
	"os"
	"path/filepath"

	"codemother/internal/logging"
)

// GetDefaultDBPath returns the database path for production mode.
// In production, the database is stored in the user's config directory.
func GetDefaultDBPath() string {
	log := logging.Component("database")
	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Warn().Err(err).Msg("user config dir unavailable, using working directory")
		return "codemother.db"
	}

	appDir := filepath.Join(configDir, "codemother")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("failed to create app config dir, using working directory")
		return "codemother.db"
	}

	return filepath.Join(appDir, "codemother.db")
}

func IsDevelopment() bool {
	return false
}
