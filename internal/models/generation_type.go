package models

import (
	"fmt"
	"strings"

	"codemother/internal/apperrors"
)

// GenerationType selects how a web project is produced and laid out on disk.
type GenerationType string

const (
	GenerationHTML       GenerationType = "html"
	GenerationMultiFile  GenerationType = "multi_file"
	GenerationVueProject GenerationType = "vue_project"
)

var generationTypeText = map[GenerationType]string{
	GenerationHTML:       "single HTML file",
	GenerationMultiFile:  "multi-file HTML/CSS/JS",
	GenerationVueProject: "Vue project",
}

// GenerationTypes lists every supported type, simplest first.
func GenerationTypes() []GenerationType {
	return []GenerationType{GenerationHTML, GenerationMultiFile, GenerationVueProject}
}

func ParseGenerationType(v string) (GenerationType, error) {
	t := GenerationType(strings.ToLower(strings.TrimSpace(v)))
	if _, ok := generationTypeText[t]; !ok {
		return "", UnsupportedType(GenerationType(v))
	}
	return t, nil
}

// UnsupportedType returns the error reported for a type without a parser, saver or prompt.
func UnsupportedType(t GenerationType) error {
	return fmt.Errorf("%w: %q", apperrors.ErrUnsupportedType, string(t))
}

func (t GenerationType) Valid() bool {
	_, ok := generationTypeText[t]
	return ok
}

func (t GenerationType) Text() string {
	if s, ok := generationTypeText[t]; ok {
		return s
	}
	return string(t)
}

// DirName is the per-app output directory name, {type}_{appId}.
func (t GenerationType) DirName(appID uint) string {
	return fmt.Sprintf("%s_%d", t, appID)
}

// UsesTools reports whether generation drives file tools instead of emitting code blocks.
func (t GenerationType) UsesTools() bool {
	return t == GenerationVueProject
}

// NeedsBuild reports whether the generated sources must go through the project builder.
func (t GenerationType) NeedsBuild() bool {
	return t == GenerationVueProject
}

// HistoryWindow is the number of prior turns replayed into memory for this type.
func (t GenerationType) HistoryWindow() int {
	if t == GenerationVueProject {
		return 50
	}
	return 20
}

// MemoryCapacity is the size of a handle's conversation memory. It leaves room past the
// replayed window for a widened tool pair and the live exchange.
func (t GenerationType) MemoryCapacity() int {
	return 2 * t.HistoryWindow()
}
