// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/progress"
)

// workResponse is the structured answer to a work prompt.
type workResponse struct {
	StepDone    *int            `json:"step_done"`
	Blocked     *string         `json:"blocked"`
	Summary     string          `json:"summary"`
	Assumptions []plan.Decision `json:"assumptions"`
}

func (m *Machine) selectStep(_ context.Context, run *RunContext) (State, error) {
	step, ok := run.Plan.FirstIncomplete()
	if !ok {
		return StateAllDone, nil
	}
	run.CurrentStep = step.ID
	run.StepDescription = step.Description
	run.CommitUnit = step.Unit
	if run.CommitUnit == "" {
		run.CommitUnit = run.Unit.ID
	}

	m.logger.Info("loaded step", "step", step.ID, "unit", run.CommitUnit, "description", step.Description)
	for _, op := range step.Files {
		m.logger.Info("planned file", "op", op.Operation, "file", path.Base(op.Path), "detail", op.Detail)
	}
	switch failure := run.Failure(); failure.Kind {
	case FailureTest, FailureReview:
		m.logger.Warn("fixing", "kind", failure.Kind, "problem", cut(failure.Text, 70))
	case FailureCompletion:
		m.logger.Warn("incomplete", "problem", cut(failure.Text, 70))
	}
	m.logger.Info("remaining", "steps", run.Plan.Remaining())
	return StateExecuteWork, nil
}

func (m *Machine) executeWork(ctx context.Context, run *RunContext) (State, error) {
	step, _ := run.Plan.Find(run.CurrentStep)

	fileOps := make([]string, len(step.Files))
	for index, op := range step.Files {
		fileOps[index] = op.String()
	}
	var planning []plan.Decision
	for _, decision := range run.AllDecisions {
		if decision.IsPlanning() {
			planning = append(planning, decision)
		}
	}

	data := map[string]any{
		"UnitID":          run.Unit.ID,
		"Title":           run.Unit.Title,
		"Description":     run.Unit.Description,
		"Checklist":       run.Plan.Checklist(run.CurrentStep),
		"StepID":          run.CurrentStep,
		"StepDescription": run.StepDescription,
		"FileOps":         strings.Join(fileOps, "\n"),
		"StepUnit":        run.CommitUnit,
		"ChildContext":    m.childContext(ctx, run),
		"PriorContext":    priorContext(run.Failure()),
		"History":         m.historyContext(ctx, run),
		"Exploration":     run.Exploration.Context(),
		"Decisions":       plan.Context(planning),
		"Iteration":       run.Iteration(),
	}

	// Verify retries stay in the iteration and keep its baseline, so
	// the commit covers every attempt.
	if run.IterState.FilesBefore == nil {
		before, err := m.config.VCS.ChangedFiles(ctx)
		if err != nil {
			m.logger.Warn("listing changed files before work", "error", err)
		}
		run.IterState.FilesBefore = make(map[string]bool, len(before))
		for _, file := range before {
			run.IterState.FilesBefore[file] = true
		}
	}

	start := m.clock.Now()
	response, err := m.ask(ctx, "work", data, backend.Request{Effort: backend.EffortWork})
	run.IterState.StepElapsed = clock.Since(m.clock, start)
	if err != nil {
		return StateExecuteWork, fmt.Errorf("workloop: step %d: %w", run.CurrentStep, err)
	}

	work, err := backend.Decode[workResponse](response)
	if err != nil {
		m.logger.Debug("unparseable work output", "step", run.CurrentStep, "text", cut(response.Text, 2000))
		return StateExecuteWork, fmt.Errorf("%w: step %d: %v", ErrUnparseableWork, run.CurrentStep, err)
	}
	run.work = work
	return StateHandleDecisions, nil
}

// childContext describes the child unit the current step implements,
// when that is not the run's own unit.
func (m *Machine) childContext(ctx context.Context, run *RunContext) string {
	if m.config.Children == nil || run.CommitUnit == "" || run.CommitUnit == run.Unit.ID {
		return ""
	}
	child, err := m.config.Children.FetchChild(ctx, run.CommitUnit)
	if err != nil {
		m.logger.Warn("fetching child unit", "unit", run.CommitUnit, "error", err)
		return ""
	}
	description := child.Description
	if description == "" {
		description = "(no description)"
	}
	return fmt.Sprintf("%s: %s\n\n%s\n\nFocus on this unit's scope, not the whole parent.",
		child.ID, child.Title, description)
}

// historyContext summarizes the newest loop commits on the branch.
func (m *Machine) historyContext(ctx context.Context, run *RunContext) string {
	if run.Unit.Branch == "" {
		return ""
	}
	history, err := progress.ReadHistory(ctx, m.config.VCS, m.config.BaseBranch, run.Unit.Branch)
	if err != nil {
		m.logger.Warn("reading commit history", "error", err)
		return ""
	}
	return history.Context()
}

// priorContext renders the pending failure as the "fix this first"
// block of the work prompt.
func priorContext(failure Failure) string {
	var lead, instruction string
	switch failure.Kind {
	case FailureTest:
		lead = "The previous attempt completed the code but tests failed:"
		instruction = "Investigate and fix this failure before marking the step done. Do not re-implement the same code."
	case FailureCompletion:
		lead = "The completion check found the step's goal was not fully achieved:"
		instruction = "Complete the missing work, then mark the step done."
	case FailureReview:
		lead = "Review found issues that were not resolved:"
		instruction = "Address these issues before marking the step done."
	default:
		return ""
	}
	return fmt.Sprintf("%s\n```\n%s\n```\n%s", lead, failure.Text, instruction)
}

func (m *Machine) handleDecisions(ctx context.Context, run *RunContext) (State, error) {
	if len(run.work.Assumptions) == 0 {
		return StateCheckCompletion, nil
	}
	namespace := strconv.Itoa(run.Iteration())
	decisions := plan.RelabelFrom(run.work.Assumptions, namespace, run.nextDecisionSequence(namespace))

	if m.config.Interactive {
		title := fmt.Sprintf("%s step %d: %s", run.Unit.ID, run.CurrentStep, run.StepDescription)
		edited, ok, err := m.config.Editor.Edit(ctx, title, decisions)
		if err != nil {
			return StateHandleDecisions, fmt.Errorf("workloop: editing decisions: %w", err)
		}
		if !ok {
			return StateHandleDecisions, ErrOperatorQuit
		}
		decisions = edited
		m.logger.Info("decisions confirmed", "count", len(decisions))
	} else {
		for _, decision := range decisions {
			m.logger.Info("decision",
				"id", decision.ID,
				"selected", decision.Selected,
				"statement", decision.Statement,
				"rationale", decision.Rationale,
			)
		}
	}
	run.addDecisions(decisions...)
	return StateCheckCompletion, nil
}

func (m *Machine) checkCompletion(ctx context.Context, run *RunContext) (State, error) {
	run.stepDone = false
	run.testsPassed = true
	run.reviewStatus = "skipped"

	if run.work.Blocked != nil && *run.work.Blocked != "" {
		reason := *run.work.Blocked
		namespace := strconv.Itoa(run.Iteration())
		record := plan.Blocked(namespace, run.nextDecisionSequence(namespace), reason)
		run.addDecisions(record)
		m.logger.Warn("blocked, recorded for manual action", "reason", reason, "id", record.ID)
	}

	switch done := run.work.StepDone; {
	case done == nil:
		m.logger.Info("step in progress", "step", run.CurrentStep)
		return StateCommitChanges, nil
	case *done != run.CurrentStep:
		m.logger.Warn("backend finished a different step", "reported", *done, "expected", run.CurrentStep)
		return StateCommitChanges, nil
	}

	summary, err := m.config.VCS.DiffSummary(ctx)
	if err != nil {
		summary = "(diff unavailable)"
	}
	m.logger.Info("step done",
		"step", run.CurrentStep,
		"elapsed", run.IterState.StepElapsed.Round(time.Second),
		"diff", summary,
	)
	if m.config.Display != nil {
		if diff, err := m.config.VCS.Diff(ctx, "HEAD"); err == nil && diff != "" {
			m.config.Display.ShowDiff(diff)
		}
	}
	run.stepDone = true
	return StateVerifyStep, nil
}
