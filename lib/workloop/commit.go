// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/git"
	"github.com/bureau-foundation/lisa/lib/progress"
)

// failMarker prefixes the title of a step committed after exhausting
// its verification attempts.
const failMarker = "[FAIL] "

// summaryLimit bounds the generated part of a commit title.
const summaryLimit = 40

func (m *Machine) commitChanges(ctx context.Context, run *RunContext) (State, error) {
	after, err := m.config.VCS.ChangedFiles(ctx)
	if err != nil {
		m.logger.Warn("listing changed files after work", "error", err)
	}
	var files []string
	for _, file := range after {
		if !run.IterState.FilesBefore[file] {
			files = append(files, file)
		}
	}
	run.IterState.FilesChanged = files

	if len(files) == 0 {
		m.logger.Info("nothing to commit", "step", run.CurrentStep)
	} else {
		if err := m.config.Verifier.RunFormat(ctx); err != nil {
			m.logger.Warn("format failed", "error", err)
		}
		// Formatting can touch files the step created.
		if after, err := m.config.VCS.ChangedFiles(ctx); err == nil {
			files = files[:0]
			for _, file := range after {
				if !run.IterState.FilesBefore[file] {
					files = append(files, file)
				}
			}
			run.IterState.FilesChanged = files
		}

		title := fmt.Sprintf("step %d: %s", run.CurrentStep, m.summarize(ctx, run.StepDescription))
		if !run.testsPassed {
			title = failMarker + title
		}
		commit := progress.Commit{
			Unit:  run.CommitUnit,
			Title: title,
			Body:  run.StepDescription,
			Trailers: &progress.Trailers{
				Iteration:    run.Iteration(),
				TestErrors:   run.IterState.TestErrors,
				ReviewIssues: run.IterState.ReviewIssues,
				Files:        files,
				Fixes:        run.IterState.FixesApplied,
			},
			Decisions: run.PendingDecisions,
		}
		if err := m.commit(ctx, commit, files, m.config.AllowNoVerify); err != nil {
			if errors.Is(err, ErrCommitRejected) || ctx.Err() != nil {
				return StateCommitChanges, err
			}
			m.logger.Error("commit failed", "step", run.CurrentStep, "error", err)
		}
	}

	run.PendingDecisions = nil
	run.VerifyAttempts = 0
	return StateSaveState, nil
}

// summarize asks the light model for a short commit title, falling
// back to the step description.
func (m *Machine) summarize(ctx context.Context, description string) string {
	response, err := m.ask(ctx, "commit_summary", map[string]any{"Description": description}, backend.Request{Light: true})
	if err == nil {
		summary := strings.TrimSpace(strings.Trim(strings.TrimSpace(response.Text), `"'`))
		if summary, _, _ = strings.Cut(summary, "\n"); summary != "" {
			return cut(summary, summaryLimit)
		}
	} else {
		m.logger.Debug("commit summary failed", "error", err)
	}
	return cut(description, summaryLimit)
}

// commit stages files and commits. When hooks reject the commit, the
// backend gets MaxHookFixAttempts tries to satisfy them, after which
// the commit is retried with hooks bypassed if allowNoVerify is set.
// With bypass disabled the result wraps ErrCommitRejected.
func (m *Machine) commit(ctx context.Context, commit progress.Commit, files []string, allowNoVerify bool) error {
	if err := m.config.VCS.Add(ctx, files...); err != nil {
		return fmt.Errorf("staging: %w", err)
	}
	message := commit.Message()
	err := m.config.VCS.Commit(ctx, message, false)
	for attempt := 1; err != nil && attempt <= MaxHookFixAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		output := hookOutput(err)
		m.logger.Warn("commit rejected, asking for a fix",
			"attempt", attempt,
			"max", MaxHookFixAttempts,
			"output", cut(output, 500),
		)
		_, fixErr := m.ask(ctx, "hook_fix", map[string]any{
			"Files":  strings.Join(files, "\n"),
			"Output": output,
		}, backend.Request{Effort: backend.EffortLightweight})
		if fixErr != nil {
			m.logger.Warn("hook fix failed", "error", fixErr)
		}
		if formatErr := m.config.Verifier.RunFormat(ctx); formatErr != nil {
			m.logger.Warn("format failed", "error", formatErr)
		}
		if addErr := m.config.VCS.Add(ctx, files...); addErr != nil {
			return fmt.Errorf("staging: %w", addErr)
		}
		err = m.config.VCS.Commit(ctx, message, false)
	}
	if err != nil {
		output := hookOutput(err)
		if !allowNoVerify {
			return fmt.Errorf("%w: %s", ErrCommitRejected, cut(output, 2000))
		}
		m.logger.Warn("hooks still failing, committing with --no-verify", "output", cut(output, 500))
		if err := m.config.VCS.Commit(ctx, progress.MarkNoVerify(message), true); err != nil {
			return fmt.Errorf("committing with hooks bypassed: %w", err)
		}
	}

	head, err := m.config.VCS.HeadShort(ctx)
	if err != nil {
		head = "?"
	}
	m.logger.Info("committed", "head", head, "unit", commit.Unit, "title", commit.Title, "files", len(files))

	if m.config.Push {
		if err := m.config.VCS.Push(ctx); err != nil {
			m.logger.Warn("push failed", "error", err)
		}
	}
	return nil
}

func hookOutput(err error) string {
	if output := strings.TrimSpace(git.Output(err)); output != "" {
		return output
	}
	return err.Error()
}
