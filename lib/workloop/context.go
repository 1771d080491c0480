// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/verify"
)

// Unit identifies the work being done.
type Unit struct {
	// ID is the human identifier, e.g. "ENG-123". Commit titles and
	// snapshot paths use it.
	ID string

	// Key addresses the unit in the tracker; the progress document is
	// a comment on it. Empty disables the document.
	Key string

	Title       string
	Description string
	URL         string
	Branch      string
}

// FailureKind classifies the failure the next attempt must address.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTest
	FailureReview
	FailureCompletion
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTest:
		return "test"
	case FailureReview:
		return "review"
	case FailureCompletion:
		return "completion"
	}
	return fmt.Sprintf("failure(%d)", int(k))
}

// Failure is the most recent verification failure. There is only ever
// one.
type Failure struct {
	Kind FailureKind
	Text string
}

// failureFrom picks the signal a failed verification leaves behind:
// completion issues first, then the first test error, then the review
// issues.
func failureFrom(result verify.Result) Failure {
	switch {
	case len(result.CompletionIssues) > 0:
		return Failure{Kind: FailureCompletion, Text: strings.Join(result.CompletionIssues, "; ")}
	case len(result.TestErrors) > 0:
		return Failure{Kind: FailureTest, Text: result.TestErrors[0]}
	case len(result.ReviewIssues) > 0:
		return Failure{Kind: FailureReview, Text: strings.Join(result.ReviewIssues, "; ")}
	}
	return Failure{}
}

// IterationState is reset at the start of every iteration and feeds
// the commit trailers.
type IterationState struct {
	FilesBefore  map[string]bool
	FilesChanged []string
	TestErrors   []string
	ReviewIssues []string
	FixesApplied int
	StepElapsed  time.Duration
}

// RunContext is the mutable state of one unit's run.
type RunContext struct {
	Unit Unit

	Plan        plan.Plan
	Exploration plan.Exploration

	// AllDecisions accumulates every decision record of the run.
	AllDecisions []plan.Decision

	// PendingDecisions are the records made since the last commit.
	PendingDecisions []plan.Decision

	// CurrentStep is the active step's ID, 0 before the first
	// selection.
	CurrentStep     int
	StepDescription string

	// CommitUnit is the identifier commits for the current step are
	// attributed to: the step's own unit, or the run's.
	CommitUnit string

	// VerifyAttempts counts failed verifications of the current step.
	VerifyAttempts int

	// StateIteration is the iteration recovered at startup;
	// LoopIteration counts iterations of this run.
	StateIteration int
	LoopIteration  int

	// IterState is the current iteration's transient record.
	IterState IterationState

	// CommentID addresses the progress document; empty until the first
	// save creates it.
	CommentID string

	// Log is the rolling progress log, newest first.
	Log []string

	ReviewGuide string

	// Started is when the run began, for elapsed-time reporting.
	Started time.Time

	failure      Failure
	work         workResponse
	stepDone     bool
	testsPassed  bool
	reviewStatus string
}

// NewRunContext builds the context for unit from recovered state.
func NewRunContext(unit Unit, recovered progress.State, started time.Time) *RunContext {
	run := &RunContext{
		Unit:           unit,
		Plan:           recovered.Steps.Clone(),
		Exploration:    recovered.Exploration,
		AllDecisions:   append([]plan.Decision(nil), recovered.Decisions...),
		StateIteration: recovered.Iteration,
		CommentID:      recovered.CommentID,
		Log:            append([]string(nil), recovered.Log...),
		ReviewGuide:    recovered.ReviewGuide,
		Started:        started,
		testsPassed:    true,
	}
	switch {
	case recovered.LastTestError != "":
		run.SetFailure(Failure{Kind: FailureTest, Text: recovered.LastTestError})
	case recovered.LastReviewIssues != "":
		run.SetFailure(Failure{Kind: FailureReview, Text: recovered.LastReviewIssues})
	}
	return run
}

// Iteration is the overall iteration number: the recovered count plus
// this run's.
func (run *RunContext) Iteration() int {
	return run.StateIteration + run.LoopIteration
}

// Failure returns the pending failure signal.
func (run *RunContext) Failure() Failure {
	return run.failure
}

// SetFailure replaces the pending failure signal.
func (run *RunContext) SetFailure(failure Failure) {
	if failure.Text == "" {
		failure = Failure{}
	}
	run.failure = failure
}

// ClearFailure drops the pending failure signal.
func (run *RunContext) ClearFailure() {
	run.failure = Failure{}
}

// LastTestError is the pending test failure, or "".
func (run *RunContext) LastTestError() string {
	return run.failureText(FailureTest)
}

// LastReviewIssues is the pending review failure, or "".
func (run *RunContext) LastReviewIssues() string {
	return run.failureText(FailureReview)
}

// LastCompletionIssues is the pending completion shortfall, or "".
func (run *RunContext) LastCompletionIssues() string {
	return run.failureText(FailureCompletion)
}

func (run *RunContext) failureText(kind FailureKind) string {
	if run.failure.Kind == kind {
		return run.failure.Text
	}
	return ""
}

// addDecisions appends records to both decision lists.
func (run *RunContext) addDecisions(decisions ...plan.Decision) {
	run.PendingDecisions = append(run.PendingDecisions, decisions...)
	run.AllDecisions = append(run.AllDecisions, decisions...)
}

// nextDecisionSequence returns the next free N for "<namespace>.N".
func (run *RunContext) nextDecisionSequence(namespace string) int {
	prefix := namespace + "."
	highest := 0
	for _, decision := range run.AllDecisions {
		suffix, ok := strings.CutPrefix(decision.ID, prefix)
		if !ok {
			continue
		}
		if sequence, err := strconv.Atoi(suffix); err == nil {
			highest = max(highest, sequence)
		}
	}
	return highest + 1
}

// document renders the run as a progress document.
func (run *RunContext) document(at time.Time) progress.Document {
	next := 0
	if step, ok := run.Plan.FirstIncomplete(); ok {
		next = step.ID
	}
	return progress.Document{
		Branch:      run.Unit.Branch,
		Iteration:   run.Iteration(),
		CurrentStep: next,
		Steps:       run.Plan.Clone(),
		Decisions:   append([]plan.Decision(nil), run.AllDecisions...),
		Exploration: run.Exploration,
		Log:         append([]string(nil), run.Log...),
		LastRun:     at,
		ReviewGuide: run.ReviewGuide,
	}
}
