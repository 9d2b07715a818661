package scm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commits are authored by a fixed identity so archives from different
// machines stay comparable.
const (
	authorName  = "calm"
	authorEmail = "calm@localhost"
)

// Archive is a git repository holding compiled payloads, one directory per
// entity.
type Archive struct {
	dir  string
	repo *git.Repository

	// now is the commit time source.
	now func() time.Time
}

// OpenArchive opens the repository at dir, initializing it when dir is not
// a repository yet.
func OpenArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		slog.Info("Initializing archive repository", "directory", dir)
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open archive repository: %w", err)
	}
	return &Archive{dir: dir, repo: repo, now: time.Now}, nil
}

// Dir returns the working tree of the archive.
func (a *Archive) Dir() string {
	return a.dir
}

// Write stores data at rel inside the working tree.
func (a *Archive) Write(rel string, data []byte) error {
	path := filepath.Join(a.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(rel), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

// Commit stages every change and commits it. When the tree is clean it
// returns the current head and false.
func (a *Archive) Commit(message string) (string, bool, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		return "", false, fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", false, fmt.Errorf("failed to stage archive files: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return "", false, fmt.Errorf("failed to read archive status: %w", err)
	}
	if status.IsClean() {
		head, err := a.Head()
		return head, false, err
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail, When: a.now()},
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to commit archive: %w", err)
	}
	slog.Info("Archived compiled payload", "commit", hash.String())
	return hash.String(), true, nil
}

// Head returns the hash of the current commit, or "" for an empty repository.
func (a *Archive) Head() (string, error) {
	ref, err := a.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read archive head: %w", err)
	}
	return ref.Hash().String(), nil
}
