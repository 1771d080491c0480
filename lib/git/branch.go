// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// CurrentBranch returns the checked-out branch name, or "" when HEAD
// is detached.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// ListBranches returns local branch names matching a glob pattern such
// as "eng-71-*", sorted.
func (r *Repository) ListBranches(ctx context.Context, pattern string) ([]string, error) {
	output, err := r.Run(ctx, "branch", "--list", "--format=%(refname:short)", pattern)
	if err != nil {
		return nil, err
	}
	branches := lines(output)
	sort.Strings(branches)
	return branches, nil
}

// CreateBranch creates name at HEAD and checks it out.
func (r *Repository) CreateBranch(ctx context.Context, name string) error {
	_, err := r.Run(ctx, "checkout", "-b", name)
	return err
}

// CheckoutBranch checks out name, creating it at HEAD or resetting it
// to HEAD when it already exists.
func (r *Repository) CheckoutBranch(ctx context.Context, name string) error {
	_, err := r.Run(ctx, "checkout", "-B", name)
	return err
}

// DeleteBranch force-deletes a local branch.
func (r *Repository) DeleteBranch(ctx context.Context, name string) error {
	_, err := r.Run(ctx, "branch", "-D", name)
	return err
}

// Push pushes the current branch, setting its upstream on first push.
func (r *Repository) Push(ctx context.Context) error {
	_, err := r.Run(ctx, "push", "--set-upstream", "origin", "HEAD")
	return err
}

// BaseSlug strips a trailing numeric suffix from a branch belonging to
// prefix: "eng-71-trade-mon-3" becomes "eng-71-trade-mon". Branches
// that do not start with "prefix-" are returned unchanged.
func BaseSlug(branch, prefix string) string {
	slug, found := strings.CutPrefix(branch, prefix+"-")
	if !found {
		return branch
	}
	index := strings.LastIndexByte(slug, '-')
	if index <= 0 || index == len(slug)-1 {
		return branch
	}
	if !isDigits(slug[index+1:]) {
		return branch
	}
	return prefix + "-" + slug[:index]
}

// NextSuffix returns the next free numeric suffix for base given the
// existing branch names. The base branch itself counts as suffix 1 and
// gaps are not reused: {base, base-2, base-5} yields 6.
func NextSuffix(branches []string, base string) int {
	highest := 1
	for _, branch := range branches {
		suffix, found := strings.CutPrefix(branch, base+"-")
		if !found {
			continue
		}
		if !isDigits(suffix) {
			continue
		}
		number, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		highest = max(highest, number)
	}
	return highest + 1
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CreateStackedBranch creates name through git-spice so the new branch
// is tracked in the current stack.
func (r *Repository) CreateStackedBranch(ctx context.Context, name string) error {
	return r.spice(ctx, "branch", "create", name)
}

// TrackStackedBranch registers the current branch with git-spice. It
// is idempotent.
func (r *Repository) TrackStackedBranch(ctx context.Context) error {
	return r.spice(ctx, "branch", "track")
}

func (r *Repository) spice(ctx context.Context, args ...string) error {
	command := exec.CommandContext(ctx, "gs", args...)
	command.Dir = r.dir
	output, err := command.CombinedOutput()
	if err != nil {
		return &CommandError{Args: append([]string{"(gs)"}, args...), Dir: r.dir, Stderr: strings.TrimSpace(string(output)), Err: err}
	}
	return nil
}
