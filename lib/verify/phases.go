// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/config"
)

// CommandFailure reports a setup, preflight, format, or coverage
// command that did not pass.
type CommandFailure struct {
	Phase string
	Name  string

	// Output is the tail of the command's output.
	Output string

	TimedOut bool
	Timeout  time.Duration
	ExitCode int
}

func (f *CommandFailure) Error() string {
	if f.TimedOut {
		return fmt.Sprintf("%s %s: timed out after %s", f.Phase, f.Name, formatSeconds(f.Timeout))
	}
	return fmt.Sprintf("%s %s: exit code %d", f.Phase, f.Name, f.ExitCode)
}

// runPhaseCommand runs one command and converts a failure into a
// *CommandFailure carrying the last outputLimit bytes of output.
func (e *Engine) runPhaseCommand(ctx context.Context, phase string, command config.Command, timeout time.Duration, outputLimit int) error {
	result, err := e.runner.Run(ctx, command.Run, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CommandFailure{Phase: phase, Name: command.Name, Output: err.Error(), ExitCode: -1}
	}
	if result.Passed() {
		return nil
	}
	output := lastChars(result.Output, outputLimit)
	if output == "" {
		output = "(no output)"
	}
	return &CommandFailure{
		Phase:    phase,
		Name:     command.Name,
		Output:   output,
		TimedOut: result.TimedOut,
		Timeout:  timeout,
		ExitCode: result.ExitCode,
	}
}

// RunFormat runs the format commands selected by the changed files and
// stops at the first failure. Nothing runs when no files changed.
func (e *Engine) RunFormat(ctx context.Context) error {
	if len(e.format) == 0 {
		return nil
	}
	changed, err := e.workspace.ChangedFiles(ctx)
	if err != nil {
		return fmt.Errorf("listing changed files: %w", err)
	}
	if len(changed) == 0 {
		return nil
	}
	for _, command := range Select(e.format, changed) {
		e.logger.Debug("running format", "command", command.Name, "run", command.Run)
		if err := e.runPhaseCommand(ctx, "format", command, timeoutOr(command, DefaultFormatTimeout), formatOutputLimit); err != nil {
			var failure *CommandFailure
			if errors.As(err, &failure) {
				e.logger.Debug("format failed", "command", command.Name, "output", failure.Output)
			}
			return err
		}
	}
	return nil
}

// RunSetup runs the setup commands one after another and stops at the
// first failure.
func (e *Engine) RunSetup(ctx context.Context) error {
	if len(e.setup) == 0 {
		return nil
	}
	e.logger.Info("running setup", "commands", len(e.setup))
	for _, command := range e.setup {
		e.logger.Info("setup", "command", command.Name)
		if err := e.runPhaseCommand(ctx, "setup", command, timeoutOr(command, DefaultSetupTimeout), failureOutputLimit); err != nil {
			e.logger.Warn("setup failed", "command", command.Name, "error", err)
			return err
		}
		e.logger.Info("setup passed", "command", command.Name)
	}
	return nil
}

// RunPreflight runs every test command that takes part in preflight
// concurrently and returns all failures joined.
func (e *Engine) RunPreflight(ctx context.Context) error {
	var commands []config.Command
	for _, command := range e.tests {
		if command.InPreflight() {
			commands = append(commands, command)
		}
	}
	if len(commands) == 0 {
		e.logger.Info("preflight: no commands configured")
		return nil
	}
	e.logger.Info("running preflight", "commands", len(commands))

	var (
		mu       sync.Mutex
		failures []*CommandFailure
	)
	group, groupContext := errgroup.WithContext(ctx)
	for _, command := range commands {
		group.Go(func() error {
			err := e.runPhaseCommand(groupContext, "preflight", command, timeoutOr(command, DefaultTestTimeout), failureOutputLimit)
			var failure *CommandFailure
			switch {
			case err == nil:
				e.logger.Info("preflight passed", "command", command.Name)
				return nil
			case errors.As(err, &failure):
				mu.Lock()
				failures = append(failures, failure)
				mu.Unlock()
				return nil
			default:
				return err
			}
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	errs := make([]error, len(failures))
	for index, failure := range failures {
		e.logger.Warn("preflight failed", "command", failure.Name, "output", failure.Output)
		errs[index] = failure
	}
	return errors.Join(errs...)
}

// CoverageResult is the coverage gate's verdict.
type CoverageResult struct {
	// Ran is false when no coverage command is configured or its paths
	// matched none of the changed files.
	Ran    bool
	Passed bool
	Output string
}

// Coverage runs the coverage command when one is configured and its
// paths match the branch's changed files.
func (e *Engine) Coverage(ctx context.Context, branchChanges []string) (CoverageResult, error) {
	if e.coverage.Run == "" || !ShouldRun(e.coverage.Paths, branchChanges) {
		return CoverageResult{}, nil
	}
	timeout := e.coverage.Timeout
	if timeout <= 0 {
		timeout = DefaultCoverageTimeout
	}
	e.logger.Info("running coverage gate")
	result, err := e.runner.Run(ctx, e.coverage.Run, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return CoverageResult{}, ctx.Err()
		}
		return CoverageResult{Ran: true, Output: err.Error()}, nil
	}
	if result.TimedOut {
		e.logger.Warn("coverage gate timed out", "timeout", timeout)
		return CoverageResult{Ran: true, Output: fmt.Sprintf("Timeout after %s", formatSeconds(timeout))}, nil
	}
	if result.Passed() {
		e.logger.Info("coverage gate passed")
		return CoverageResult{Ran: true, Passed: true}, nil
	}
	e.logger.Warn("coverage gate failed")
	return CoverageResult{Ran: true, Output: result.Output}, nil
}

// FixCoverage asks the backend to add tests until the coverage gate
// passes.
func (e *Engine) FixCoverage(ctx context.Context, changed []string, output string) error {
	if output == "" {
		output = "(no output)"
	}
	_, err := e.ask(ctx, "coverage_fix", map[string]any{
		"ChangedFiles": listOrNone(changed, "(no changed files)"),
		"Output":       firstChars(output, coverageOutputLimit),
	}, backend.Request{Effort: backend.EffortReview})
	return err
}
