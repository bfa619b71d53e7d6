package client

import (
	"embed"
	"fmt"
	"strings"

	"codemother/internal/models"
)

// embeddedPrompts holds the built-in prompt templates so packaged executables
// can load them without needing access to the source tree.
//
//go:embed prompts/*.txt
var embeddedPrompts embed.FS

const (
	PromptRouting      = "routing"
	PromptQualityCheck = "quality_check"
)

// Prompt returns the embedded prompt named name.
func Prompt(name string) (string, error) {
	b, err := embeddedPrompts.ReadFile(fmt.Sprintf("prompts/%s.txt", name))
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// SystemPrompt returns the generation system prompt for t.
func SystemPrompt(t models.GenerationType) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("system prompt: %w", models.UnsupportedType(t))
	}
	return Prompt(string(t) + "_system")
}
