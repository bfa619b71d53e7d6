package codegen

import "codemother/internal/models"

const (
	FileHTML = "index.html"
	FileCSS  = "style.css"
	FileJS   = "script.js"
)

// CodeResult is a parsed reply ready to be written to disk.
type CodeResult interface {
	Type() models.GenerationType
	// Files maps file names to content in write order. Blank entries are skipped by savers.
	Files() []File
}

type File struct {
	Name    string
	Content string
}

type HTMLCodeResult struct {
	HTML string
}

func (r *HTMLCodeResult) Type() models.GenerationType { return models.GenerationHTML }

func (r *HTMLCodeResult) Files() []File {
	return []File{{Name: FileHTML, Content: r.HTML}}
}

type MultiFileCodeResult struct {
	HTML string
	CSS  string
	JS   string
}

func (r *MultiFileCodeResult) Type() models.GenerationType { return models.GenerationMultiFile }

func (r *MultiFileCodeResult) Files() []File {
	return []File{
		{Name: FileHTML, Content: r.HTML},
		{Name: FileCSS, Content: r.CSS},
		{Name: FileJS, Content: r.JS},
	}
}
