// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"fmt"
	"strings"
)

// ChangedFiles returns every path with uncommitted changes: modified,
// staged, deleted, and untracked. Renames and copies report the new
// path. The result is in git's order.
func (r *Repository) ChangedFiles(ctx context.Context) ([]string, error) {
	output, err := r.Run(ctx, "status", "--porcelain", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(output), nil
}

// parsePorcelain parses "git status --porcelain -z" output. Each entry
// is "XY path" terminated by NUL; renames and copies are followed by a
// second NUL-terminated field holding the original path.
func parsePorcelain(output string) []string {
	var files []string
	fields := strings.Split(output, "\x00")
	for index := 0; index < len(fields); index++ {
		entry := fields[index]
		if len(entry) < 4 {
			continue
		}
		status, path := entry[:2], entry[3:]
		files = append(files, path)
		if status[0] == 'R' || status[0] == 'C' || status[1] == 'R' || status[1] == 'C' {
			index++
		}
	}
	return files
}

// Diff returns the working tree diff against ref, including staged
// changes.
func (r *Repository) Diff(ctx context.Context, ref string) (string, error) {
	return r.Run(ctx, "diff", ref)
}

// DiffStat returns "git diff --stat" against ref.
func (r *Repository) DiffStat(ctx context.Context, ref string) (string, error) {
	output, err := r.Run(ctx, "diff", "--stat", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// DiffSummary returns a short description of uncommitted work suitable
// for summarization: the stat and the head of the diff, or the list of
// new files when only untracked files changed.
func (r *Repository) DiffSummary(ctx context.Context) (string, error) {
	stat, err := r.DiffStat(ctx, "HEAD")
	if err != nil {
		return "", err
	}
	diff, err := r.Diff(ctx, "HEAD")
	if err != nil {
		return "", err
	}
	var summary strings.Builder
	if stat != "" {
		summary.WriteString(truncate(stat, 300) + "\n")
	}
	if diff = strings.TrimSpace(diff); diff != "" {
		summary.WriteString(truncate(diff, 700))
	}
	if summary.Len() == 0 {
		status, err := r.Run(ctx, "status", "--short")
		if err != nil {
			return "", err
		}
		if status = strings.TrimSpace(status); status != "" {
			return "New files:\n" + truncate(status, 500), nil
		}
		return "no changes", nil
	}
	return summary.String(), nil
}

// ChangedSince returns paths that differ between the merge base of
// base and HEAD, and the working tree.
func (r *Repository) ChangedSince(ctx context.Context, base string) ([]string, error) {
	output, err := r.Run(ctx, "diff", "--name-only", base+"...HEAD")
	if err != nil {
		return nil, err
	}
	return lines(output), nil
}

// BranchDiff returns the diff of everything committed on HEAD since it
// forked from base.
func (r *Repository) BranchDiff(ctx context.Context, base string) (string, error) {
	return r.Run(ctx, "diff", base+"...HEAD")
}

// OnelineLog returns "git log --oneline" for a revision range.
func (r *Repository) OnelineLog(ctx context.Context, revisionRange string) ([]string, error) {
	output, err := r.Run(ctx, "log", "--oneline", revisionRange)
	if err != nil {
		return nil, err
	}
	return lines(output), nil
}

// LogMessages returns full commit messages in the revision range whose
// message matches the extended regular expression grep, newest first.
func (r *Repository) LogMessages(ctx context.Context, grep, revisionRange string) ([]string, error) {
	output, err := r.Run(ctx, "log",
		"--grep="+grep, "--extended-regexp",
		"--format=%B%x00", revisionRange)
	if err != nil {
		return nil, fmt.Errorf("reading history in %s: %w", revisionRange, err)
	}
	var messages []string
	for _, message := range strings.Split(output, "\x00") {
		if message = strings.TrimSpace(message); message != "" {
			messages = append(messages, message)
		}
	}
	return messages, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
