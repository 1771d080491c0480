// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/lisa/lib/git"
	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/tracker"
)

// statusDescriptionLimit bounds the description shown by Status.
const statusDescriptionLimit = 200

// StatusRequest selects what Status shows.
type StatusRequest struct {
	Unit string

	// Branch defaults to the current branch when it belongs to the
	// unit, else the unit's newest branch.
	Branch string

	// ShowDiff also shows the branch diff when the branch is checked
	// out.
	ShowDiff bool
}

// Status renders a unit's recovered progress without changing
// anything: no branch is created and nothing is written.
func (s *Session) Status(ctx context.Context, request StatusRequest) error {
	unit, err := s.config.Tracker.FetchUnit(ctx, request.Unit)
	if err != nil {
		return fmt.Errorf("fetching unit: %w", err)
	}
	repo := git.NewRepository(s.config.Dir)
	prefix := branchPrefix(unit.ID)

	current, err := repo.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	existing, err := repo.ListBranches(ctx, prefix+"-*")
	if err != nil {
		return err
	}
	branch := request.Branch
	if branch == "" {
		branch = newestBranch(current, existing, unit.ID)
	}

	document := progress.Document{Branch: branch}
	if branch != "" {
		recovered := progress.Recover(ctx, s.store, s.snapshots, repo, progress.RecoverRequest{
			UnitKey: unit.Key,
			UnitID:  unit.ID,
			Branch:  branch,
			Base:    s.settings.Git.BaseBranch,
		}, s.logger)
		document.Iteration = recovered.Iteration
		document.Steps = recovered.Steps
		document.Decisions = recovered.Decisions
		document.Exploration = recovered.Exploration
		document.Log = recovered.Log
		document.ReviewGuide = recovered.ReviewGuide
	}
	if len(document.Steps) == 0 {
		document.Steps = fallbackPlan(unit)
	}
	if step, ok := document.Steps.FirstIncomplete(); ok {
		document.CurrentStep = step.ID
	}

	s.config.Display.ShowMarkdown(statusMarkdown(unit, current, existing, document))

	if request.ShowDiff && branch != "" && branch == current {
		diff, err := repo.BranchDiff(ctx, s.settings.Git.BaseBranch)
		if err != nil {
			return fmt.Errorf("reading branch diff: %w", err)
		}
		if diff != "" {
			s.config.Display.ShowDiff(diff)
		}
	}
	return nil
}

// newestBranch picks the branch Status describes: the current one when
// it belongs to the unit, else the last of the unit's branches.
func newestBranch(current string, existing []string, unitID string) string {
	if onUnitBranch(current, unitID) {
		return current
	}
	if len(existing) == 0 {
		return ""
	}
	newest := existing[0]
	highest := 0
	for _, branch := range existing {
		base := git.BaseSlug(branch, branchPrefix(unitID))
		suffix := 1
		if base != branch {
			fmt.Sscanf(strings.TrimPrefix(branch, base+"-"), "%d", &suffix)
		}
		if suffix > highest {
			highest = suffix
			newest = branch
		}
	}
	return newest
}

func statusMarkdown(unit tracker.Unit, current string, existing []string, document progress.Document) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "## %s: %s\n\n", unit.ID, unit.Title)
	if description := strings.TrimSpace(unit.Description); description != "" {
		builder.WriteString(cutText(description, statusDescriptionLimit) + "\n\n")
	}

	branches := "none"
	if len(existing) > 0 {
		branches = "`" + strings.Join(existing, "`, `") + "`"
	}
	next := "All done!"
	if step, ok := document.Steps.FirstIncomplete(); ok {
		next = step.Description
	}
	if len(document.Steps) == 0 {
		next = "no plan yet"
	}
	builder.WriteString("| Field | Value |\n|-------|-------|\n")
	fmt.Fprintf(&builder, "| Existing branches | %s |\n", branches)
	fmt.Fprintf(&builder, "| Current branch | %s |\n", orDash(current))
	fmt.Fprintf(&builder, "| Progress | %d/%d steps done |\n", document.Steps.DoneCount(), len(document.Steps))
	fmt.Fprintf(&builder, "| Next step | %s |\n", strings.ReplaceAll(next, "|", "/"))
	fmt.Fprintf(&builder, "| Remaining | %d steps |\n\n", document.Steps.Remaining())

	builder.WriteString(document.Render())
	return builder.String()
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
