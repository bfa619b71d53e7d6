package deploy

import (
	"errors"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"

	"codemother/internal/utils"
)

var snapshotExcludes = []string{"node_modules", "dist"}

// Snapshotter records each deployed version of an app's sources as a tagged git commit in
// the source directory.
type Snapshotter struct {
	Author string
	Email  string
	now    func() time.Time
}

func NewSnapshotter() *Snapshotter {
	return &Snapshotter{Author: "codemother", Email: "deploy@codemother.local", now: time.Now}
}

// open returns the repository at path, initializing one when none exists.
func (s *Snapshotter) open(path string) (*git.Repository, error) {
	var (
		repo *git.Repository
		err  error
	)
	if utils.HasGitRepo(path) {
		repo, err = git.PlainOpen(path)
	} else {
		repo, err = git.PlainInit(path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot repository: %w", err)
	}
	return repo, nil
}

// Snapshot commits the current state of dir and points tag v{version} at it, replacing an
// older tag of the same name. It returns the commit hash.
func (s *Snapshotter) Snapshot(dir string, version int) (string, error) {
	repo, err := s.open(dir)
	if err != nil {
		return "", err
	}
	w, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	for _, p := range snapshotExcludes {
		w.Excludes = append(w.Excludes, gitignore.ParsePattern(p, nil))
	}
	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage sources: %w", err)
	}

	sig := &object.Signature{Name: s.Author, Email: s.Email, When: s.now()}
	tag := TagName(version)
	hash, err := w.Commit("deploy "+tag, &git.CommitOptions{Author: sig, AllowEmptyCommits: true})
	if err != nil {
		return "", fmt.Errorf("commit sources: %w", err)
	}
	if err := repo.DeleteTag(tag); err != nil && !errors.Is(err, git.ErrTagNotFound) {
		return "", fmt.Errorf("replace tag %s: %w", tag, err)
	}
	if _, err := repo.CreateTag(tag, hash, nil); err != nil {
		return "", fmt.Errorf("create tag %s: %w", tag, err)
	}
	return hash.String(), nil
}

// TaggedCommit returns the commit hash a version tag points at.
func (s *Snapshotter) TaggedCommit(dir string, version int) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", err
	}
	ref, err := repo.Reference(plumbing.NewTagReferenceName(TagName(version)), true)
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

func TagName(version int) string {
	return fmt.Sprintf("v%d", version)
}
