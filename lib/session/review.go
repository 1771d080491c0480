// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/verify"
	"github.com/bureau-foundation/lisa/lib/workloop"
)

// ErrNotOnUnitBranch is returned by Conclude when the checked-out
// branch does not belong to the unit.
var ErrNotOnUnitBranch = errors.New("session: not on a branch of the unit")

// ReviewOnly runs the full review of the current branch against the
// base branch, using the decisions recovered for it, and shows the
// report.
func (s *Session) ReviewOnly(ctx context.Context, unitID string) (verify.Report, error) {
	work, run, err := s.currentRun(ctx, unitID, false)
	if err != nil {
		return verify.Report{}, err
	}
	machine, err := s.machine(work, s.logger.With("unit", unitID))
	if err != nil {
		return verify.Report{}, err
	}
	if len(run.AllDecisions) > 0 {
		s.logger.Info("loaded decisions from state", "count", len(run.AllDecisions))
	}
	report, err := machine.ReviewBranch(ctx, run)
	if err != nil {
		return verify.Report{}, err
	}
	s.config.Display.ShowMarkdown(reportMarkdown(report))
	return report, nil
}

// Conclude writes the review guide for the current branch, shows it,
// and attaches it to the branch's progress document when one exists.
func (s *Session) Conclude(ctx context.Context, unitID string) (string, error) {
	work, run, err := s.currentRun(ctx, unitID, true)
	if err != nil {
		return "", err
	}
	logger := s.logger.With("unit", unitID, "branch", run.Unit.Branch)
	machine, err := s.machine(work, logger)
	if err != nil {
		return "", err
	}
	logger.Info("generating review guide", "steps", len(run.Plan), "decisions", len(run.AllDecisions))
	guide, err := machine.Conclude(ctx, run)
	if err != nil {
		return "", err
	}
	if run.Unit.Key != "" {
		err := s.store.AttachReviewGuide(ctx, run.Unit.Key, run.Unit.Branch, guide)
		switch {
		case errors.Is(err, progress.ErrNoDocument):
		case err != nil:
			logger.Warn("could not attach review guide", "error", err)
		default:
			logger.Info("review guide attached")
		}
	}
	return guide, nil
}

// currentRun recovers the run context of the checked-out branch. With
// requireUnitBranch the branch must belong to the unit.
func (s *Session) currentRun(ctx context.Context, unitID string, requireUnitBranch bool) (*workspace, *workloop.RunContext, error) {
	unit, err := s.config.Tracker.FetchUnit(ctx, unitID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching unit: %w", err)
	}
	work, err := s.workspace(s.config.Dir)
	if err != nil {
		return nil, nil, err
	}
	branch, err := work.repo.CurrentBranch(ctx)
	if err != nil {
		return nil, nil, err
	}
	if requireUnitBranch && !onUnitBranch(branch, unit.ID) {
		return nil, nil, fmt.Errorf("%w (current: %s, expected: %s-*)", ErrNotOnUnitBranch, orDash(branch), branchPrefix(unit.ID))
	}
	var recovered progress.State
	if branch != "" {
		recovered = progress.Recover(ctx, s.store, s.snapshots, work.repo, progress.RecoverRequest{
			UnitKey: unit.Key,
			UnitID:  unit.ID,
			Branch:  branch,
			Base:    s.settings.Git.BaseBranch,
		}, s.logger)
	}
	run := workloop.NewRunContext(unitOf(unit, branch), recovered, s.clock.Now())
	if len(run.Plan) == 0 {
		run.Plan = fallbackPlan(unit)
	}
	return work, run, nil
}

func reportMarkdown(report verify.Report) string {
	var builder strings.Builder
	status := "NEEDS_FIXES"
	if report.Approved {
		status = "APPROVED"
	}
	fmt.Fprintf(&builder, "## Review: %s\n\n", status)
	if len(report.Findings) > 0 {
		builder.WriteString("**Findings:**\n\n")
		for _, finding := range report.Findings {
			fmt.Fprintf(&builder, "- [%s]", orDash(finding.Severity))
			if finding.Location != "" {
				fmt.Fprintf(&builder, " `%s`", finding.Location)
			}
			fmt.Fprintf(&builder, " %s\n", finding.Description)
		}
		builder.WriteByte('\n')
	}
	fmt.Fprintf(&builder, "**Summary:** %s\n", orDash(report.Summary))
	return builder.String()
}
