package codegen

import (
	"context"
	"fmt"

	"codemother/internal/models"
)

// Facade parses and saves replies for the code-block generation types.
type Facade struct {
	Root string
}

func NewFacade(root string) *Facade {
	return &Facade{Root: root}
}

// Save parses raw for genType and writes it under the output root, returning the directory.
func (f *Facade) Save(ctx context.Context, genType models.GenerationType, appID uint, raw string) (string, error) {
	result, err := Parse(genType, raw)
	if err != nil {
		return "", err
	}
	saver, err := SaverFor(genType)
	if err != nil {
		return "", err
	}
	dir, err := saver.SaveCode(ctx, f.Root, appID, result)
	if err != nil {
		return "", fmt.Errorf("save %s code for app %d: %w", genType, appID, err)
	}
	return dir, nil
}
