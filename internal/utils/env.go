package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

// LoadEnv loads .env from the working directory, or from the project root when run inside
// the source tree. A missing file is not an error; variables already set win.
func LoadEnv() error {
	paths := []string{".env"}
	if root, err := FindProjectRoot(); err == nil {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
