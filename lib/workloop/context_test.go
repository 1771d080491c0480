// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import (
	"testing"
	"time"

	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/verify"
)

func TestFailureFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result verify.Result
		want   Failure
	}{
		{"passed", verify.Result{Passed: true}, Failure{}},
		{
			"completion wins",
			verify.Result{CompletionIssues: []string{"no handler", "no route"}, TestErrors: []string{"boom"}},
			Failure{Kind: FailureCompletion, Text: "no handler; no route"},
		},
		{
			"first test error",
			verify.Result{TestErrors: []string{"first", "second"}, ReviewIssues: []string{"style"}},
			Failure{Kind: FailureTest, Text: "first"},
		},
		{
			"review issues joined",
			verify.Result{ReviewIssues: []string{"nil check", "naming"}},
			Failure{Kind: FailureReview, Text: "nil check; naming"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := failureFrom(test.result); got != test.want {
				t.Errorf("failureFrom() = %+v, want %+v", got, test.want)
			}
		})
	}
}

func TestRunContext_FailureSignalsAreExclusive(t *testing.T) {
	t.Parallel()

	run := NewRunContext(Unit{ID: "ENG-1"}, progress.State{}, time.Time{})
	signals := func() int {
		count := 0
		for _, text := range []string{run.LastTestError(), run.LastReviewIssues(), run.LastCompletionIssues()} {
			if text != "" {
				count++
			}
		}
		return count
	}

	steps := []Failure{
		{Kind: FailureTest, Text: "boom"},
		{Kind: FailureReview, Text: "nil check"},
		{Kind: FailureCompletion, Text: "no route"},
		{Kind: FailureTest, Text: ""},
	}
	for _, failure := range steps {
		run.SetFailure(failure)
		if got := signals(); got > 1 {
			t.Fatalf("after SetFailure(%+v) %d signals are set", failure, got)
		}
	}
	if run.Failure().Kind != FailureNone {
		t.Errorf("empty failure text left kind %s", run.Failure().Kind)
	}
}

func TestNewRunContext_SeedsFromRecoveredState(t *testing.T) {
	t.Parallel()

	recovered := progress.State{
		Iteration:        4,
		CommentID:        "c-9",
		Steps:            plan.Plan{{ID: 1, Description: "Add schema"}},
		Decisions:        []plan.Decision{{ID: "P.1", Selected: true, Statement: "Reuse store"}, {ID: "4.1", Statement: "x"}},
		LastReviewIssues: "missing nil check",
	}
	run := NewRunContext(Unit{ID: "ENG-1"}, recovered, time.Time{})

	if run.LastReviewIssues() != "missing nil check" || run.LastTestError() != "" {
		t.Errorf("failure = %+v, want the recovered review issues", run.Failure())
	}
	if run.CommentID != "c-9" {
		t.Errorf("CommentID = %q", run.CommentID)
	}
	run.LoopIteration = 1
	if run.Iteration() != 5 {
		t.Errorf("Iteration() = %d, want 5", run.Iteration())
	}
	if got := run.nextDecisionSequence("4"); got != 2 {
		t.Errorf("nextDecisionSequence(4) = %d, want 2", got)
	}
	run.addDecisions(plan.Decision{ID: "4.7", Statement: "edited in"})
	if got := run.nextDecisionSequence("4"); got != 8 {
		t.Errorf("nextDecisionSequence(4) = %d after 4.7, want 8", got)
	}

	run.Plan.MarkDone(1)
	if recovered.Steps[0].Done {
		t.Error("run context shares its plan with the recovered state")
	}
	document := run.document(time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC))
	if document.CurrentStep != 0 || document.Iteration != 5 {
		t.Errorf("document current step %d, iteration %d", document.CurrentStep, document.Iteration)
	}
}
