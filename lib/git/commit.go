// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
)

// Add stages the given paths. With no paths it stages everything,
// including deletions and untracked files.
func (r *Repository) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		_, err := r.Run(ctx, "add", "-A")
		return err
	}
	_, err := r.Run(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// Commit records the staged changes with message. When noVerify is set
// the pre-commit and commit-msg hooks are skipped. A hook rejection is
// returned as a *CommandError whose Stderr holds the hook output.
func (r *Repository) Commit(ctx context.Context, message string, noVerify bool) error {
	args := []string{"commit", "-m", message}
	if noVerify {
		args = []string{"commit", "--no-verify", "-m", message}
	}
	_, err := r.Run(ctx, args...)
	return err
}

// HasChanges reports whether the working tree has anything to commit.
func (r *Repository) HasChanges(ctx context.Context) (bool, error) {
	files, err := r.ChangedFiles(ctx)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}
