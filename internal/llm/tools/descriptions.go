package tools

import (
	"embed"
	"fmt"
	"strings"
)

// toolDescFS embeds the model-facing tool descriptions. A tool named "write_file"
// is described by "write_file.txt".
//
//go:embed *.txt
var toolDescFS embed.FS

// ToolDescription returns the embedded description for name, or fallback when none exists.
func ToolDescription(name, fallback string) string {
	key := strings.TrimSuffix(strings.TrimSpace(name), ".txt")
	if key == "" {
		return fallback
	}
	b, err := toolDescFS.ReadFile(fmt.Sprintf("%s.txt", key))
	if err != nil {
		return fallback
	}
	return strings.TrimSpace(string(b))
}
