// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"

	"github.com/bureau-foundation/lisa/lib/backend"
)

// lightReview is a quick sanity check's verdict.
type lightReview struct {
	Approved bool   `json:"approved"`
	Issue    string `json:"issue"`
}

// reviewLight runs the quick review used inside the verify loop. An
// unparseable or failed review counts as not approved.
func (e *Engine) reviewLight(ctx context.Context, task stepTask) (lightReview, error) {
	changed, diff := e.snapshot(ctx)
	response, err := e.ask(ctx, "review_light", map[string]any{
		"StepDescription": task.step.Description,
		"UnitDescription": task.unitDescription,
		"ChangedFiles":    listOrNone(changed, "(no changed files)"),
		"Diff":            diff,
	}, backend.Request{Effort: backend.EffortLightweight})
	if err != nil {
		if ctx.Err() != nil {
			return lightReview{}, ctx.Err()
		}
		e.logger.Warn("review call failed, treating as needs fixes", "error", err)
		return lightReview{Issue: "review failed: " + err.Error()}, nil
	}
	review, err := backend.Decode[lightReview](response)
	if err != nil {
		e.logger.Warn("review output unparseable, treating as needs fixes", "error", err)
		return lightReview{Issue: "review output unparseable"}, nil
	}
	if review.Approved {
		e.logger.Info("review approved")
		return review, nil
	}
	if review.Issue == "" {
		review.Issue = "unknown issue"
	}
	e.logger.Warn("review needs fixes", "issue", firstChars(review.Issue, issueFingerprintSize))
	return review, nil
}

// Finding is one problem a full review reported.
type Finding struct {
	Location    string `json:"location,omitempty"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Report is a full review's verdict.
type Report struct {
	Approved bool      `json:"approved"`
	Summary  string    `json:"summary"`
	Findings []Finding `json:"findings"`
}

// ReviewRequest is the context of a full review of a branch.
type ReviewRequest struct {
	UnitID      string
	Title       string
	Description string

	// Checklist is the rendered plan.
	Checklist string

	// Decisions are the selected decision records, rendered.
	Decisions string

	// Commits is the one-line log of the branch.
	Commits string

	// Diff is the branch diff against its base.
	Diff string
}

// Review runs the full review of a finished branch. An unparseable
// answer is a not-approved report; only a failed backend call is an
// error.
func (e *Engine) Review(ctx context.Context, request ReviewRequest) (Report, error) {
	response, err := e.ask(ctx, "review", map[string]any{
		"UnitID":      request.UnitID,
		"Title":       request.Title,
		"Description": request.Description,
		"Checklist":   request.Checklist,
		"Decisions":   request.Decisions,
		"Commits":     request.Commits,
		"Diff":        request.Diff,
	}, backend.Request{Effort: backend.EffortReview})
	if err != nil {
		return Report{}, err
	}
	report, err := backend.Decode[Report](response)
	if err != nil {
		e.logger.Warn("review output unparseable, treating as needs fixes", "error", err)
		return Report{Summary: "review output unparseable"}, nil
	}
	if report.Summary == "" {
		report.Summary = "review completed"
	}
	if report.Approved {
		e.logger.Info("review approved", "summary", report.Summary)
	} else {
		e.logger.Warn("review needs fixes", "summary", report.Summary, "findings", len(report.Findings))
	}
	return report, nil
}
