package codegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codemother/internal/apperrors"
	"codemother/internal/models"

	"golang.org/x/sync/errgroup"
)

// Saver writes a CodeResult under {root}/{type}_{appID}.
type Saver interface {
	Validate(result CodeResult) error
	SaveCode(ctx context.Context, root string, appID uint, result CodeResult) (string, error)
}

type fileSaver struct {
	genType models.GenerationType
}

func (s fileSaver) Validate(result CodeResult) error {
	if result == nil {
		return apperrors.Validation("code result is required")
	}
	if result.Type() != s.genType {
		return apperrors.Validationf("cannot save %s result as %s", result.Type(), s.genType)
	}
	// the primary artifact must have content; secondary files may be blank
	for _, f := range result.Files() {
		if f.Name == FileHTML && strings.TrimSpace(f.Content) == "" {
			return apperrors.Validation("HTML code is empty")
		}
	}
	return nil
}

func (s fileSaver) SaveCode(ctx context.Context, root string, appID uint, result CodeResult) (string, error) {
	if err := s.Validate(result); err != nil {
		return "", err
	}
	if appID == 0 {
		return "", apperrors.Validation("appID is required")
	}
	dir := filepath.Join(root, s.genType.DirName(appID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, f := range result.Files() {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		g.Go(func() error {
			if err := os.WriteFile(filepath.Join(dir, f.Name), []byte(f.Content), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", f.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return dir, nil
}

var savers = map[models.GenerationType]Saver{
	models.GenerationHTML:      fileSaver{genType: models.GenerationHTML},
	models.GenerationMultiFile: fileSaver{genType: models.GenerationMultiFile},
}

// SaverFor selects the saver for t.
func SaverFor(t models.GenerationType) (Saver, error) {
	s, ok := savers[t]
	if !ok {
		return nil, models.UnsupportedType(t)
	}
	return s, nil
}
