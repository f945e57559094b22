// Package project derives the stable project id that keys project memory.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
)

// IDPrefix starts every project id.
const IDPrefix = "pm_"

// Project identifies one (user, root directory) pair.
type Project struct {
	ID   string
	User string
	Root string

	// InRepo is true when Root is the top of a git working tree.
	InRepo bool
}

// Resolve returns the project for user working in workDir. The root is
// the enclosing git working tree when there is one, otherwise the cleaned
// absolute workDir. An empty user falls back to the current OS user.
func Resolve(userName, workDir string) (*Project, error) {
	if userName == "" {
		userName = CurrentUser()
	}
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}

	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", workDir, err)
	}
	abs = filepath.Clean(abs)

	root, inRepo, err := repoRoot(abs)
	if err != nil {
		return nil, err
	}

	return &Project{
		ID:     ID(userName, root),
		User:   userName,
		Root:   root,
		InRepo: inRepo,
	}, nil
}

// ID hashes user and root into a project id.
func ID(userName, root string) string {
	sum := sha256.Sum256([]byte(userName + "\x00" + root))
	return IDPrefix + hex.EncodeToString(sum[:])[:16]
}

// CurrentUser returns the OS user name, or "unknown".
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

func repoRoot(dir string) (string, bool, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return dir, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to open git repository at %q: %w", dir, err)
	}

	wt, err := repo.Worktree()
	if errors.Is(err, gogit.ErrIsBareRepository) {
		return dir, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read git worktree: %w", err)
	}
	return filepath.Clean(wt.Filesystem.Root()), true, nil
}
