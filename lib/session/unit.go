// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/tracker"
	"github.com/bureau-foundation/lisa/lib/workloop"
)

// runUnit takes one unit from fetch to the end of its work loop.
// completed is true when every step is done.
func (s *Session) runUnit(ctx context.Context, work *workspace, id string) (completed bool, err error) {
	unitStart := s.clock.Now()
	logger := s.logger.With("unit", id)

	unit, err := s.config.Tracker.FetchUnit(ctx, id)
	if err != nil {
		return false, fmt.Errorf("fetching unit: %w", err)
	}
	logger.Info("fetched unit", "title", unit.Title, "children", len(unit.Children))

	branch, err := s.checkoutBranch(ctx, work, unit, logger)
	if err != nil {
		return false, err
	}
	logger = logger.With("branch", branch)

	recovered := progress.Recover(ctx, s.store, s.snapshots, work.repo, progress.RecoverRequest{
		UnitKey: unit.Key,
		UnitID:  unit.ID,
		Branch:  branch,
		Base:    s.settings.Git.BaseBranch,
	}, logger)
	if recovered.HasPlan() {
		logger.Info("resuming",
			"iteration", recovered.Iteration,
			"done", recovered.Steps.DoneCount(),
			"steps", len(recovered.Steps),
			"source", recovered.Source,
		)
	} else {
		logger.Info("no existing state, starting fresh")
	}
	if recovered.LastTestError != "" {
		logger.Warn("previous test failure", "error", cutText(recovered.LastTestError, 80))
	}
	if recovered.LastReviewIssues != "" {
		logger.Warn("previous review issues", "issues", cutText(recovered.LastReviewIssues, 80))
	}

	run := workloop.NewRunContext(unitOf(unit, branch), recovered, unitStart)

	if !recovered.HasPlan() && !s.config.Options.SkipPlan {
		result, err := s.planUnit(ctx, work, unit, logger)
		if err != nil {
			return false, err
		}
		if len(result.Steps) > 0 {
			run.Plan = result.Steps
			run.Exploration = result.Exploration
			run.AllDecisions = append(run.AllDecisions, result.Decisions...)
			s.savePlan(ctx, run, logger)
		}
	}
	if len(run.Plan) == 0 {
		run.Plan = fallbackPlan(unit)
		if len(run.Plan) == 0 {
			return false, ErrNoPlan
		}
		logger.Info("using child units as plan steps", "steps", len(run.Plan))
	}

	if run.Plan.Remaining() == 0 {
		logger.Info("all plan steps complete, skipping work", "elapsed", s.since(unitStart))
		return true, nil
	}

	machine, err := s.machine(work, logger)
	if err != nil {
		return false, err
	}
	outcome, err := machine.Run(ctx, run)
	if err != nil {
		return false, err
	}
	if outcome != workloop.OutcomeDone {
		return false, nil
	}

	attributes := []any{"elapsed", s.since(unitStart)}
	if s.config.Meter != nil {
		attributes = append(attributes, "usage", s.config.Meter.Total().String())
	}
	if summary, err := work.repo.DiffStat(ctx, s.settings.Git.BaseBranch); err == nil && summary != "" {
		attributes = append(attributes, "diff", summary)
	}
	logger.Info("unit complete", attributes...)
	return true, nil
}

// savePlan writes the first progress document for a fresh plan. A
// failure is logged; the work loop saves again after the first
// iteration.
func (s *Session) savePlan(ctx context.Context, run *workloop.RunContext, logger *slog.Logger) {
	now := s.clock.Now()
	document := progress.Document{
		Branch:      run.Unit.Branch,
		Iteration:   run.Iteration(),
		Steps:       run.Plan.Clone(),
		Decisions:   slices.Clone(run.AllDecisions),
		Exploration: run.Exploration,
		Log:         run.Log,
		LastRun:     now,
	}
	if step, ok := run.Plan.FirstIncomplete(); ok {
		document.CurrentStep = step.ID
	}
	document.AddLog("Plan created", now)
	run.Log = document.Log

	if run.Unit.Key != "" {
		commentID, err := s.store.Save(ctx, run.Unit.Key, run.CommentID, document)
		if err != nil {
			logger.Warn("could not save plan", "error", err)
		} else {
			run.CommentID = commentID
			logger.Info("plan saved", "url", commentURL(run.Unit.URL, commentID), "steps", len(run.Plan))
		}
	}
	if err := s.snapshots.Save(progress.SnapshotOf(run.Unit.ID, run.CommentID, document, now)); err != nil {
		logger.Warn("could not write snapshot", "error", err)
	}
}

func unitOf(unit tracker.Unit, branch string) workloop.Unit {
	return workloop.Unit{
		ID:          unit.ID,
		Key:         unit.Key,
		Title:       unit.Title,
		Description: unit.Description,
		URL:         unit.URL,
		Branch:      branch,
	}
}

// commentURL links to a comment on the unit's page.
func commentURL(unitURL, commentID string) string {
	if unitURL == "" || commentID == "" {
		return unitURL
	}
	return unitURL + "#comment-" + commentID[:min(8, len(commentID))]
}

func (s *Session) since(start time.Time) time.Duration {
	return clock.Since(s.clock, start).Round(time.Second)
}

// cutText shortens s to limit runes.
func cutText(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
