package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var errEscapesRoot = errors.New("path escapes the project root")

// Workspace is the directory a tool-using generation operates in. All tool paths are
// interpreted relative to Root.
type Workspace struct {
	Root string
}

// NewWorkspace returns the workspace for {outputRoot}/{dirName}, creating the directory.
func NewWorkspace(outputRoot, dirName string) (Workspace, error) {
	root := filepath.Join(outputRoot, dirName)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace %s: %w", root, err)
	}
	return Workspace{Root: root}, nil
}

// Resolve maps a project-relative path to an absolute path inside the workspace.
// Absolute paths are accepted when they point inside the root.
func (w Workspace) Resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("path is required")
	}
	if strings.TrimSpace(w.Root) == "" {
		return "", errors.New("project root not set")
	}
	if filepath.IsAbs(p) {
		root, err := filepath.Abs(w.Root)
		if err != nil {
			return "", err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return "", errEscapesRoot
		}
		p = rel
	}
	abs, ok := safeJoinUnderBase(w.Root, p)
	if !ok {
		return "", errEscapesRoot
	}
	return abs, nil
}

// Rel returns abs relative to the workspace root in slash form, for display.
func (w Workspace) Rel(abs string) string {
	root, err := filepath.Abs(w.Root)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// safeJoinUnderBase resolves a path under base, returning an absolute path that
// is guaranteed to remain within base. If the resolution escapes base, ok=false.
func safeJoinUnderBase(base, p string) (abs string, ok bool) {
	cleanBase := base
	if cleanBase == "" {
		cleanBase = "."
	}
	absBase, err := filepath.Abs(cleanBase)
	if err != nil {
		return "", false
	}
	// Resolve symlinks for consistent comparison
	evalBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		evalBase = absBase
	}

	candidate := filepath.Join(evalBase, p)
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return "", false
	}
	evalCandidate, err := filepath.EvalSymlinks(absCandidate)
	if err != nil {
		// file may not exist yet
		evalCandidate = absCandidate
	}

	relToBase, err := filepath.Rel(evalBase, evalCandidate)
	if err != nil {
		return "", false
	}
	if relToBase == "." {
		return absBase, true
	}
	if relToBase == ".." || strings.HasPrefix(relToBase, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(absBase, relToBase), true
}
