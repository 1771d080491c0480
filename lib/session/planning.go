// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/decisionui"
	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/tracker"
	"github.com/bureau-foundation/lisa/lib/workloop"
)

// planningResponse is the structured answer of the planning call.
type planningResponse struct {
	Exploration plan.Exploration `json:"exploration"`
	Steps       plan.Plan        `json:"steps"`
	Assumptions []plan.Decision  `json:"assumptions"`
}

// planned is the outcome of the planning phase.
type planned struct {
	Steps       plan.Plan
	Exploration plan.Exploration
	Decisions   []plan.Decision
}

// planUnit runs the planning call, showing the decisions to the
// operator in interactive mode. Choosing replan in the editor plans
// again with the edited decisions as constraints. An unparseable plan
// yields no steps; the caller falls back to the child units.
func (s *Session) planUnit(ctx context.Context, work *workspace, unit tracker.Unit, logger *slog.Logger) (planned, error) {
	interactive := s.config.Options.Interactive || s.config.Options.AlwaysInteractive
	var prior []plan.Decision
	for {
		if prior == nil {
			logger.Info("planning")
		} else {
			logger.Info("re-planning with edited decisions")
		}
		result, err := s.askPlan(ctx, work, unit, prior, logger)
		if err != nil {
			return planned{}, err
		}
		result.Decisions = plan.Relabel(result.Decisions, plan.PlanningNamespace)

		if !interactive || len(result.Decisions) == 0 {
			return result, nil
		}
		review, err := s.config.Editor.Review(ctx, unit.ID+": "+unit.Title, result.Decisions)
		if err != nil {
			return planned{}, err
		}
		switch review.Action {
		case decisionui.ActionQuit:
			return planned{}, workloop.ErrOperatorQuit
		case decisionui.ActionReplan:
			prior = review.Decisions
			continue
		}
		result.Decisions = review.Decisions
		logger.Info("decisions confirmed", "selected", len(plan.Selected(result.Decisions)))
		return result, nil
	}
}

func (s *Session) askPlan(ctx context.Context, work *workspace, unit tracker.Unit, prior []plan.Decision, logger *slog.Logger) (planned, error) {
	children := "No child units defined"
	example := unit.ID
	if len(unit.Children) > 0 {
		var builder strings.Builder
		for _, child := range unit.Children {
			fmt.Fprintf(&builder, "- %s: %s\n", child.ID, child.Title)
		}
		children = strings.TrimRight(builder.String(), "\n")
		example = unit.Children[0].ID
	}
	prompt, err := s.settings.Render("planning", map[string]any{
		"UnitID":         unit.ID,
		"Title":          unit.Title,
		"Description":    unit.Description,
		"Children":       children,
		"ExampleUnit":    example,
		"PriorDecisions": priorDecisions(prior),
	})
	if err != nil {
		return planned{}, err
	}
	request := backend.Request{Prompt: prompt, Effort: backend.EffortPlanning}
	if schema, err := s.settings.Schema("planning"); err == nil {
		request.Schema = schema
	}
	response, err := work.backend.Invoke(ctx, request)
	if err != nil {
		return planned{}, fmt.Errorf("planning: %w", err)
	}
	logger.Debug("backend output", "prompt", "planning", "text", response.Text, "structured", string(response.Structured))

	answer, err := backend.Decode[planningResponse](response)
	if err != nil {
		logger.Warn("planning output unparseable, falling back to child units", "error", err)
		return planned{}, nil
	}
	steps := make(plan.Plan, 0, len(answer.Steps))
	for _, step := range answer.Steps {
		step.Done = false
		steps = append(steps, step)
	}
	if !answer.Exploration.Empty() {
		logger.Info("exploration",
			"patterns", len(answer.Exploration.Patterns),
			"modules", len(answer.Exploration.Modules),
			"templates", len(answer.Exploration.References),
		)
	}
	if len(steps) == 0 {
		logger.Warn("planning produced no steps, falling back to child units")
	} else {
		logger.Info("plan generated", "steps", len(steps))
	}
	return planned{Steps: steps, Exploration: answer.Exploration, Decisions: answer.Assumptions}, nil
}

// priorDecisions renders operator-reviewed decisions for a replan,
// "[x]" marking accepted ones.
func priorDecisions(decisions []plan.Decision) string {
	var builder strings.Builder
	for _, decision := range decisions {
		marker := "[ ]"
		if decision.Selected {
			marker = "[x]"
		}
		fmt.Fprintf(&builder, "- %s %s", marker, decision.Statement)
		if decision.Rationale != "" {
			fmt.Fprintf(&builder, " (%s)", decision.Rationale)
		}
		builder.WriteByte('\n')
	}
	return strings.TrimRight(builder.String(), "\n")
}

// fallbackPlan turns the unit's children, dependency-ordered, into
// steps.
func fallbackPlan(unit tracker.Unit) plan.Plan {
	if len(unit.Children) == 0 {
		return nil
	}
	return plan.FromUnits(plan.SortByDependencies(unit.PlanUnits()))
}
