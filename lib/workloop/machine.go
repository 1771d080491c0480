// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/tracker"
	"github.com/bureau-foundation/lisa/lib/verify"
)

var (
	// ErrUnparseableWork is returned when the work call's answer cannot
	// be decoded. The loop cannot tell what the backend did, so it
	// stops.
	ErrUnparseableWork = errors.New("workloop: work output could not be parsed")

	// ErrOperatorQuit is returned when the operator quits the decision
	// editor.
	ErrOperatorQuit = errors.New("workloop: operator quit")

	// ErrCommitRejected is returned when hooks reject a commit and
	// bypassing them is not allowed.
	ErrCommitRejected = errors.New("workloop: commit rejected by hooks")
)

// Retry ceilings.
const (
	// MaxVerifyAttempts is how many times a step may fail verification
	// before it is committed with a failure marker.
	MaxVerifyAttempts = 3

	// MaxHookFixAttempts is how many times the backend may try to
	// satisfy a rejecting commit hook.
	MaxHookFixAttempts = 2
)

// Prompts renders prompt templates and returns output schemas.
type Prompts interface {
	Render(name string, data any) (string, error)
	Schema(name string) (json.RawMessage, error)
}

// VCS is the version control surface the loop needs.
// *git.Repository implements it.
type VCS interface {
	ChangedFiles(ctx context.Context) ([]string, error)
	Diff(ctx context.Context, ref string) (string, error)
	DiffSummary(ctx context.Context) (string, error)
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string, noVerify bool) error
	HeadShort(ctx context.Context) (string, error)
	Push(ctx context.Context) error
	ChangedSince(ctx context.Context, base string) ([]string, error)
	BranchDiff(ctx context.Context, base string) (string, error)
	OnelineLog(ctx context.Context, revisionRange string) ([]string, error)
	LogMessages(ctx context.Context, grep, revisionRange string) ([]string, error)
}

// Verifier checks steps and runs the command phases.
// *verify.Engine implements it.
type Verifier interface {
	VerifyStep(ctx context.Context, step plan.Step, unitDescription string) (verify.Result, error)
	RunFormat(ctx context.Context) error
	RunTests(ctx context.Context, failedTests []string) (*verify.TestFailure, error)
	Review(ctx context.Context, request verify.ReviewRequest) (verify.Report, error)
	Coverage(ctx context.Context, branchChanges []string) (verify.CoverageResult, error)
	FixCoverage(ctx context.Context, changed []string, output string) error
}

// StateStore persists the progress document. *progress.Store
// implements it.
type StateStore interface {
	Save(ctx context.Context, issueKey, commentID string, document progress.Document) (string, error)
}

// SnapshotSaver writes the local checkpoint. *progress.SnapshotStore
// implements it.
type SnapshotSaver interface {
	Save(snapshot progress.Snapshot) error
}

// ChildFetcher loads a child unit's details. *tracker.Client
// implements it.
type ChildFetcher interface {
	FetchChild(ctx context.Context, id string) (tracker.ChildDetails, error)
}

// DecisionEditor lets the operator review decision records. Edit
// returns the edited records, or ok=false when the operator quit.
type DecisionEditor interface {
	Edit(ctx context.Context, title string, decisions []plan.Decision) (edited []plan.Decision, ok bool, err error)
}

// Display shows rich output to an attached console.
type Display interface {
	ShowDiff(diff string)
	ShowMarkdown(markdown string)
}

// Config holds a Machine's collaborators and settings.
type Config struct {
	Backend  backend.Backend
	Prompts  Prompts
	Verifier Verifier
	VCS      VCS

	// Store persists the progress document. Optional.
	Store StateStore

	// Snapshots persists the local checkpoint. Optional.
	Snapshots SnapshotSaver

	// Children resolves child-unit details for step prompts. Optional.
	Children ChildFetcher

	// Editor is used for every batch of work decisions when
	// Interactive is set.
	Editor      DecisionEditor
	Interactive bool

	// Display receives highlighted diffs and the review guide.
	// Optional.
	Display Display

	// Meter reports usage per iteration and in total. Optional.
	Meter *backend.Meter

	Clock  clock.Clock
	Logger *slog.Logger

	// BaseBranch is the branch the work branch forked from.
	BaseBranch string

	MaxIterations int

	// SkipVerify marks steps done without verification and skips the
	// final review and coverage gate.
	SkipVerify bool

	// AllowNoVerify permits a --no-verify commit after the hook-fix
	// attempts are spent.
	AllowNoVerify bool

	// Push pushes after every commit.
	Push bool
}

// Machine runs the work loop.
type Machine struct {
	config Config
	clock  clock.Clock
	logger *slog.Logger
}

// New validates config and returns a Machine.
func New(config Config) (*Machine, error) {
	switch {
	case config.Backend == nil:
		return nil, errors.New("workloop: backend is required")
	case config.Prompts == nil:
		return nil, errors.New("workloop: prompts are required")
	case config.Verifier == nil:
		return nil, errors.New("workloop: verifier is required")
	case config.VCS == nil:
		return nil, errors.New("workloop: VCS is required")
	case config.MaxIterations <= 0:
		return nil, fmt.Errorf("workloop: max iterations must be positive, got %d", config.MaxIterations)
	case config.Interactive && config.Editor == nil:
		return nil, errors.New("workloop: interactive mode needs a decision editor")
	}
	machineClock := config.Clock
	if machineClock == nil {
		machineClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{config: config, clock: machineClock, logger: logger}, nil
}

type handlerFunc func(ctx context.Context, run *RunContext) (State, error)

// handler returns the function for a non-terminal state, or nil for a
// terminal one.
func (m *Machine) handler(state State) handlerFunc {
	switch state {
	case StateSelectStep:
		return m.selectStep
	case StateExecuteWork:
		return m.executeWork
	case StateHandleDecisions:
		return m.handleDecisions
	case StateCheckCompletion:
		return m.checkCompletion
	case StateVerifyStep:
		return m.verifyStep
	case StateCommitChanges:
		return m.commitChanges
	case StateSaveState:
		return m.saveState
	case StateAllDone, StateMaxIterations:
		return nil
	}
	return nil
}

// Run drives run until every step is done or the iteration budget is
// spent. Errors end the run early; see the package documentation for
// which ones.
func (m *Machine) Run(ctx context.Context, run *RunContext) (Outcome, error) {
	if run.Started.IsZero() {
		run.Started = m.clock.Now()
	}
	state := StateSelectStep
	for loop := 1; loop <= m.config.MaxIterations; loop++ {
		run.LoopIteration = loop
		run.IterState = IterationState{}
		if m.config.Meter != nil {
			m.config.Meter.ResetIteration()
		}
		iterationStart := m.clock.Now()
		m.logger.Info("iteration",
			"iteration", run.Iteration(),
			"max", m.config.MaxIterations,
			"unit", run.Unit.ID,
			"title", cut(run.Unit.Title, 30),
		)

		for state != StateSaveState && state != StateAllDone {
			if err := ctx.Err(); err != nil {
				return OutcomeExhausted, err
			}
			next, err := m.dispatch(ctx, run, state)
			if err != nil {
				return OutcomeExhausted, err
			}
			state = next
		}

		if state == StateAllDone {
			if err := m.allDone(ctx, run); err != nil {
				return OutcomeDone, err
			}
			return OutcomeDone, nil
		}

		next, err := m.dispatch(ctx, run, state)
		if err != nil {
			return OutcomeExhausted, err
		}
		state = next

		attributes := []any{"iteration", run.Iteration(), "elapsed", clock.Since(m.clock, iterationStart).Round(time.Second)}
		if m.config.Meter != nil {
			attributes = append(attributes, "usage", m.config.Meter.Iteration().String())
		}
		m.logger.Info("iteration complete", attributes...)
	}
	m.maxIterations(run)
	return OutcomeExhausted, nil
}

func (m *Machine) dispatch(ctx context.Context, run *RunContext, state State) (State, error) {
	handle := m.handler(state)
	if handle == nil {
		return state, fmt.Errorf("workloop: no handler for state %s", state)
	}
	next, err := handle(ctx, run)
	if err != nil {
		return state, err
	}
	m.logger.Debug("transition", "from", state, "to", next)
	return next, nil
}

// ask renders a prompt, attaches its schema when one is configured,
// and invokes the backend.
func (m *Machine) ask(ctx context.Context, prompt string, data any, request backend.Request) (backend.Response, error) {
	rendered, err := m.config.Prompts.Render(prompt, data)
	if err != nil {
		return backend.Response{}, err
	}
	request.Prompt = rendered
	if schema, err := m.config.Prompts.Schema(prompt); err == nil {
		request.Schema = schema
	}
	response, err := m.config.Backend.Invoke(ctx, request)
	if err != nil {
		return backend.Response{}, fmt.Errorf("%s: %w", prompt, err)
	}
	m.logger.Debug("backend output", "prompt", prompt, "text", response.Text, "structured", string(response.Structured))
	return response, nil
}

// cut shortens s to limit runes, marking the cut with "...".
func cut(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
