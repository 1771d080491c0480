// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/verify"
)

// reviewDiffLimit bounds the branch diff sent to the final review.
const reviewDiffLimit = 50000

const (
	cleanupTitle  = "final cleanup"
	coverageTitle = "add tests for coverage"
)

// allDone runs the final phase: full review, leftover commit, coverage
// gate, review guide, then the closing report. Only cancellation is an
// error; everything else is logged.
func (m *Machine) allDone(ctx context.Context, run *RunContext) error {
	m.logger.Info("all steps done", "unit", run.Unit.ID, "steps", len(run.Plan))

	title := cleanupTitle
	if !m.config.SkipVerify {
		report, err := m.ReviewBranch(ctx, run)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			m.logger.Warn("final review failed", "error", err)
		default:
			m.logReport(report)
			if report.Summary != "" {
				title = cut(report.Summary, summaryLimit)
			}
		}
	}
	if err := m.commitLeftovers(ctx, run, title, false); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn("final commit failed", "error", err)
	}

	if !m.config.SkipVerify {
		if err := m.coverageGate(ctx, run); err != nil {
			return err
		}
	}

	if _, err := m.Conclude(ctx, run); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn("review guide failed", "error", err)
	}
	m.persist(ctx, run, run.document(m.clock.Now()))

	m.reportManual(run)
	m.reportTotals(ctx, run, "unit complete")
	return nil
}

// ReviewBranch runs the full review of everything the branch changed.
func (m *Machine) ReviewBranch(ctx context.Context, run *RunContext) (verify.Report, error) {
	commits, err := m.config.VCS.OnelineLog(ctx, m.config.BaseBranch+"..HEAD")
	if err != nil {
		m.logger.Warn("reading branch log", "error", err)
	}
	diff, err := m.config.VCS.BranchDiff(ctx, m.config.BaseBranch)
	if err != nil {
		m.logger.Warn("reading branch diff", "error", err)
	}
	if len(diff) > reviewDiffLimit {
		diff = strings.ToValidUTF8(diff[:reviewDiffLimit], "") + "\n... (truncated)"
	}
	return m.config.Verifier.Review(ctx, verify.ReviewRequest{
		UnitID:      run.Unit.ID,
		Title:       run.Unit.Title,
		Description: run.Unit.Description,
		Checklist:   run.Plan.Checklist(0),
		Decisions:   plan.Context(run.AllDecisions),
		Commits:     strings.Join(commits, "\n"),
		Diff:        diff,
	})
}

func (m *Machine) logReport(report verify.Report) {
	if report.Approved {
		m.logger.Info("final review approved", "summary", report.Summary)
	} else {
		m.logger.Warn("final review found issues", "summary", report.Summary, "findings", len(report.Findings))
	}
	for _, finding := range report.Findings {
		m.logger.Warn("finding",
			"severity", finding.Severity,
			"location", finding.Location,
			"description", finding.Description,
		)
	}
}

// commitLeftovers commits whatever is still uncommitted under title.
func (m *Machine) commitLeftovers(ctx context.Context, run *RunContext, title string, allowNoVerify bool) error {
	files, err := m.config.VCS.ChangedFiles(ctx)
	if err != nil {
		return fmt.Errorf("listing changed files: %w", err)
	}
	if len(files) == 0 {
		return nil
	}
	commit := progress.Commit{Unit: run.Unit.ID, Title: title}
	return m.commit(ctx, commit, files, allowNoVerify)
}

// coverageGate runs the coverage command and, while it fails, asks for
// tests up to verify.MaxFixAttempts times. A shortfall that survives
// the loop is reported, not returned.
func (m *Machine) coverageGate(ctx context.Context, run *RunContext) error {
	changes, err := m.config.VCS.ChangedSince(ctx, m.config.BaseBranch)
	if err != nil {
		m.logger.Warn("listing branch changes", "error", err)
		return nil
	}
	result, err := m.config.Verifier.Coverage(ctx, changes)
	if err != nil {
		return err
	}

	for attempt := 1; result.Ran && !result.Passed && attempt <= verify.MaxFixAttempts; attempt++ {
		m.logger.Info("fixing coverage", "attempt", attempt, "max", verify.MaxFixAttempts)
		if err := m.config.Verifier.FixCoverage(ctx, changes, result.Output); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("coverage fix failed", "error", err)
			continue
		}
		failure, err := m.config.Verifier.RunTests(ctx, nil)
		if err != nil {
			return err
		}
		if failure != nil {
			m.logger.Warn("tests fail after coverage fix", "command", failure.Command, "summary", failure.Summary)
			result.Output = failure.Output
			continue
		}
		if err := m.config.Verifier.RunFormat(ctx); err != nil {
			m.logger.Warn("format failed", "error", err)
		}
		if err := m.commitLeftovers(ctx, run, coverageTitle, m.config.AllowNoVerify); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("committing coverage tests", "error", err)
		}

		if changes, err = m.config.VCS.ChangedSince(ctx, m.config.BaseBranch); err != nil {
			m.logger.Warn("listing branch changes", "error", err)
			return nil
		}
		if result, err = m.config.Verifier.Coverage(ctx, changes); err != nil {
			return err
		}
	}
	if result.Ran && !result.Passed {
		m.logger.Warn("coverage gate still failing", "output", cut(result.Output, 500))
	}
	return nil
}

// Conclude writes the review guide for the branch, shows it, and
// stores its markdown on run.
func (m *Machine) Conclude(ctx context.Context, run *RunContext) (string, error) {
	changes, err := m.config.VCS.ChangedSince(ctx, m.config.BaseBranch)
	if err != nil {
		m.logger.Warn("listing branch changes", "error", err)
	}
	commits, err := m.config.VCS.OnelineLog(ctx, m.config.BaseBranch+"..HEAD")
	if err != nil {
		m.logger.Warn("reading branch log", "error", err)
	}
	response, err := m.ask(ctx, "conclusion", map[string]any{
		"UnitID":       run.Unit.ID,
		"Title":        run.Unit.Title,
		"Description":  run.Unit.Description,
		"Exploration":  run.Exploration.Context(),
		"Checklist":    run.Plan.Checklist(0),
		"Decisions":    plan.Context(run.AllDecisions),
		"ChangedFiles": strings.Join(changes, "\n"),
		"Commits":      strings.Join(commits, "\n"),
	}, backend.Request{Effort: backend.EffortReview})
	if err != nil {
		return "", err
	}
	guide, err := backend.Decode[progress.ReviewGuide](response)
	if err != nil {
		m.logger.Warn("review guide output unparseable", "error", err)
		guide = progress.FallbackGuide(response.Text)
	}
	markdown := guide.Markdown()
	run.ReviewGuide = markdown
	if m.config.Display != nil {
		m.config.Display.ShowMarkdown(markdown)
	}
	return markdown, nil
}

func (m *Machine) maxIterations(run *RunContext) {
	m.reportManual(run)
	m.logger.Warn("max iterations reached",
		"unit", run.Unit.ID,
		"max", m.config.MaxIterations,
		"remaining", run.Plan.Remaining(),
	)
	m.reportTotals(context.Background(), run, "unit incomplete")
}

// reportManual lists the actions the backend could not take.
func (m *Machine) reportManual(run *RunContext) {
	for _, decision := range plan.Manual(run.AllDecisions) {
		m.logger.Warn("manual action required",
			"id", decision.ID,
			"action", strings.TrimPrefix(decision.Statement, plan.ManualPrefix),
		)
	}
}

func (m *Machine) reportTotals(ctx context.Context, run *RunContext, message string) {
	attributes := []any{
		"unit", run.Unit.ID,
		"iterations", run.LoopIteration,
		"steps_done", run.Plan.DoneCount(),
		"steps", len(run.Plan),
		"elapsed", clock.Since(m.clock, run.Started).Round(time.Second),
	}
	if m.config.Meter != nil {
		attributes = append(attributes, "usage", m.config.Meter.Total().String())
	}
	if commits, err := m.config.VCS.OnelineLog(ctx, m.config.BaseBranch+"..HEAD"); err == nil {
		attributes = append(attributes, "commits", len(commits))
	}
	m.logger.Info(message, attributes...)
}
