// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the work loop:
// branch allocation, change detection, diffs for prompts, commits with
// trailers, history queries, and scratch worktrees. All commands target
// a specific working tree via the -C flag, which every Repository
// method injects.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Repository represents a git working tree at a specific directory.
// There is no default directory: callers must always specify which
// repository they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// CommandError describes a failed git invocation. Stderr carries git's
// own explanation, which for commit failures is the hook output the
// work loop feeds back to the backend.
type CommandError struct {
	Args   []string
	Dir    string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s in %s: %v (stderr: %s)",
		strings.Join(e.Args, " "), e.Dir, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Output returns the stderr of a failed git command wrapped anywhere
// in err's chain, or "" when err is not a git failure.
func Output(err error) string {
	var commandError *CommandError
	if errors.As(err, &commandError) {
		return commandError.Stderr
	}
	return ""
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and carried in a *CommandError
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := r.Command(ctx, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		// Hooks often print to stdout; keep both so the complaint
		// survives.
		detail := strings.TrimSpace(stderr.String())
		if out := strings.TrimSpace(stdout.String()); out != "" {
			detail = strings.TrimSpace(out + "\n" + detail)
		}
		return "", &CommandError{Args: args, Dir: r.dir, Stderr: detail, Err: err}
	}
	return stdout.String(), nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The -C flag targeting this repository is automatically prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}

// TopLevel returns the absolute path of the working tree root.
func (r *Repository) TopLevel(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// HeadShort returns the abbreviated hash of HEAD.
func (r *Repository) HeadShort(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// lines splits command output into trimmed non-empty lines.
func lines(output string) []string {
	var result []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}
	return result
}
