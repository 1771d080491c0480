// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// AddDetachedWorktree creates a worktree at path with HEAD detached at
// ref. A stale directory at path is removed first.
func (r *Repository) AddDetachedWorktree(ctx context.Context, path, ref string) error {
	if _, err := os.Stat(path); err == nil {
		if err := r.RemoveWorktree(ctx, path); err != nil {
			return fmt.Errorf("removing stale worktree at %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating worktree parent: %w", err)
	}
	_, err := r.Run(ctx, "worktree", "add", "--detach", path, ref)
	return err
}

// RemoveWorktree removes the worktree at path. If git refuses, the
// directory is deleted directly and the dangling administrative entry
// is pruned. The returned error reports only a directory that could
// not be removed.
func (r *Repository) RemoveWorktree(ctx context.Context, path string) error {
	_, removeErr := r.Run(ctx, "worktree", "remove", "--force", path)
	if removeErr == nil {
		return nil
	}

	var directoryErr error
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		directoryErr = fmt.Errorf("removing worktree directory %s: %w", path, err)
	}
	// Prune drops .git/worktrees/<name> once its directory is gone.
	if _, err := r.Run(ctx, "worktree", "prune"); err != nil && directoryErr == nil {
		return fmt.Errorf("pruning worktree metadata after %v: %w", removeErr, err)
	}
	return directoryErr
}
