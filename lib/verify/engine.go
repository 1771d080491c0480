// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/config"
	"github.com/bureau-foundation/lisa/lib/digest"
	"github.com/bureau-foundation/lisa/lib/plan"
)

// Retry ceilings.
const (
	// MaxFixAttempts bounds the test-fix loop, the review-fix loop, and
	// the coverage-fix loop.
	MaxFixAttempts = 4

	// MaxIssueRepeats is how many times the same review issue may come
	// back before the engine gives up on it for this iteration.
	MaxIssueRepeats = 3
)

// Default per-command timeouts. A command's own timeout overrides them.
const (
	DefaultTestTimeout     = 600 * time.Second
	DefaultFormatTimeout   = 120 * time.Second
	DefaultSetupTimeout    = 300 * time.Second
	DefaultCoverageTimeout = 300 * time.Second
)

// Output limits.
const (
	extractionInputLimit = 1_500_000
	fallbackOutputLimit  = 5000
	fixDiffLimit         = 15000
	failureOutputLimit   = 3000
	formatOutputLimit    = 2000
	coverageOutputLimit  = 3000
	issueFingerprintSize = 100
)

// FailureLogPath is where the last test failure is written, relative to
// the working directory.
const FailureLogPath = ".lisa/test-failure.log"

// Prompts renders prompt templates and returns output schemas.
// *config.Config implements it.
type Prompts interface {
	Render(name string, data any) (string, error)
	Schema(name string) (json.RawMessage, error)
}

// Workspace reports the uncommitted state of the working tree.
// *git.Repository implements it.
type Workspace interface {
	ChangedFiles(ctx context.Context) ([]string, error)
	Diff(ctx context.Context, ref string) (string, error)
}

// Config holds the engine's collaborators and commands.
type Config struct {
	Backend   backend.Backend
	Prompts   Prompts
	Workspace Workspace

	// Runner executes commands. Defaults to a [ShellRunner] in Dir.
	Runner Runner

	// Clock times the default runner's commands.
	Clock clock.Clock

	// Dir is the working tree root. The failure log is written under
	// it.
	Dir string

	Tests    []config.Command
	Format   []config.Command
	Setup    []config.Command
	Coverage config.CoverageConfig

	Logger *slog.Logger
}

// Engine runs verification and the other command phases.
type Engine struct {
	backend   backend.Backend
	prompts   Prompts
	workspace Workspace
	runner    Runner
	dir       string
	tests     []config.Command
	format    []config.Command
	setup     []config.Command
	coverage  config.CoverageConfig
	logger    *slog.Logger
}

// New returns an engine for config.
func New(config Config) (*Engine, error) {
	if config.Backend == nil {
		return nil, errors.New("verify: backend is required")
	}
	if config.Prompts == nil {
		return nil, errors.New("verify: prompts are required")
	}
	if config.Workspace == nil {
		return nil, errors.New("verify: workspace is required")
	}
	runner := config.Runner
	if runner == nil {
		runner = ShellRunner{Dir: config.Dir, Clock: config.Clock}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		backend:   config.Backend,
		prompts:   config.Prompts,
		workspace: config.Workspace,
		runner:    runner,
		dir:       config.Dir,
		tests:     config.Tests,
		format:    config.Format,
		setup:     config.Setup,
		coverage:  config.Coverage,
		logger:    logger,
	}, nil
}

// Result is the outcome of verifying one step. At most one of the
// issue lists explains a failure: completion issues stop verification
// before tests, and a test failure stops it before review.
type Result struct {
	Passed           bool
	TestErrors       []string
	ReviewIssues     []string
	CompletionIssues []string

	// FixAttempts counts review-fix rounds.
	FixAttempts int
}

// stepTask is the context every fix prompt carries.
type stepTask struct {
	step            plan.Step
	unitDescription string
}

// VerifyStep checks the working tree against step. The returned error
// is non-nil only when ctx is cancelled.
func (e *Engine) VerifyStep(ctx context.Context, step plan.Step, unitDescription string) (Result, error) {
	task := stepTask{step: step, unitDescription: unitDescription}

	if step.ID != 0 && step.Description != "" {
		complete, missing, err := e.checkCompletion(ctx, step)
		if err != nil {
			return Result{}, err
		}
		if !complete {
			return Result{CompletionIssues: []string{missing}}, nil
		}
	}

	failure, err := e.testAndFix(ctx, task)
	if err != nil {
		return Result{}, err
	}
	if failure != nil {
		return Result{TestErrors: []string{failure.Summary}}, nil
	}

	var issues []string
	seen := map[digest.Hash]int{}
	for attempt := range MaxFixAttempts {
		review, err := e.reviewLight(ctx, task)
		if err != nil {
			return Result{}, err
		}
		if review.Approved {
			return Result{Passed: true, FixAttempts: attempt, ReviewIssues: issues}, nil
		}

		issue := firstChars(review.Issue, issueFingerprintSize)
		fingerprint := digest.Feedback(issue)
		seen[fingerprint]++
		if seen[fingerprint] >= MaxIssueRepeats {
			e.logger.Warn("review issue repeated, deferring to the next iteration",
				"issue", issue, "repeats", seen[fingerprint])
			return Result{ReviewIssues: append(issues, issue), FixAttempts: attempt + 1}, nil
		}
		issues = append(issues, issue)

		if err := e.fix(ctx, "review issue", review.Issue, task); err != nil {
			return Result{}, err
		}

		failure, err := e.testAndFix(ctx, task)
		if err != nil {
			return Result{}, err
		}
		if failure != nil {
			return Result{
				TestErrors:   []string{failure.Summary},
				ReviewIssues: issues,
				FixAttempts:  attempt + 1,
			}, nil
		}
	}
	return Result{ReviewIssues: issues, FixAttempts: MaxFixAttempts}, nil
}

type completionAnswer struct {
	Complete bool   `json:"complete"`
	Missing  string `json:"missing"`
}

// checkCompletion asks whether the step's goal was met. Anything short
// of a clear "no" counts as complete.
func (e *Engine) checkCompletion(ctx context.Context, step plan.Step) (bool, string, error) {
	changed, diff := e.snapshot(ctx)
	fileOps := make([]string, len(step.Files))
	for index, op := range step.Files {
		fileOps[index] = op.String()
	}
	response, err := e.ask(ctx, "completion_check", map[string]any{
		"StepID":          step.ID,
		"StepDescription": step.Description,
		"FileOps":         strings.Join(fileOps, "\n"),
		"ChangedFiles":    listOrNone(changed, "(no changed files)"),
		"Diff":            diff,
	}, backend.Request{Effort: backend.EffortLightweight})
	if err != nil {
		if ctx.Err() != nil {
			return false, "", ctx.Err()
		}
		e.logger.Warn("completion check failed, treating step as complete", "error", err)
		return true, "", nil
	}
	answer, err := backend.Decode[completionAnswer](response)
	if err != nil {
		e.logger.Warn("completion check unparseable, treating step as complete", "error", err)
		return true, "", nil
	}
	if answer.Complete {
		e.logger.Info("completion check passed", "step", step.ID)
		return true, "", nil
	}
	missing := answer.Missing
	if missing == "" {
		missing = "unknown"
	}
	e.logger.Warn("completion check failed", "step", step.ID, "missing", firstChars(missing, 100))
	return false, missing, nil
}

// fix asks the backend to resolve problem and waits for it. Backend
// failures are logged; the following re-test decides whether the fix
// worked.
func (e *Engine) fix(ctx context.Context, kind, problem string, task stepTask) error {
	_, err := e.ask(ctx, "fix", map[string]any{
		"Kind":            kind,
		"StepDescription": task.step.Description,
		"Problem":         problem,
		"UnitDescription": task.unitDescription,
		"Diff":            e.fixDiff(ctx),
	}, backend.Request{Effort: backend.EffortLightweight})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("fix call failed", "kind", kind, "error", err)
		return nil
	}
	e.logger.Info("fix applied", "kind", kind)
	return nil
}

// fixDiff is the diff against HEAD for fix prompts.
func (e *Engine) fixDiff(ctx context.Context) string {
	diff, err := e.workspace.Diff(ctx, "HEAD")
	if err != nil {
		return "(no diff available)"
	}
	if len(diff) > fixDiffLimit {
		return firstChars(diff, fixDiffLimit) + "\n... (truncated)"
	}
	return diff
}

// snapshot returns the changed files and the truncated diff for review
// and completion prompts. Failures degrade to empty values.
func (e *Engine) snapshot(ctx context.Context) ([]string, string) {
	changed, err := e.workspace.ChangedFiles(ctx)
	if err != nil {
		e.logger.Warn("listing changed files", "error", err)
	}
	return changed, e.fixDiff(ctx)
}

// ask renders a prompt, attaches its schema when one is configured,
// and invokes the backend.
func (e *Engine) ask(ctx context.Context, prompt string, data any, request backend.Request) (backend.Response, error) {
	rendered, err := e.prompts.Render(prompt, data)
	if err != nil {
		return backend.Response{}, err
	}
	request.Prompt = rendered
	if schema, err := e.prompts.Schema(prompt); err == nil {
		request.Schema = schema
	}
	response, err := e.backend.Invoke(ctx, request)
	if err != nil {
		return backend.Response{}, fmt.Errorf("%s: %w", prompt, err)
	}
	e.logger.Debug("backend output", "prompt", prompt, "text", response.Text, "structured", string(response.Structured))
	return response, nil
}

func (e *Engine) path(relative string) string {
	if e.dir == "" {
		return relative
	}
	return filepath.Join(e.dir, relative)
}

func listOrNone(values []string, none string) string {
	if len(values) == 0 {
		return none
	}
	return strings.Join(values, "\n")
}
