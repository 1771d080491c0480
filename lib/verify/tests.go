// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/lisa/lib/atomicfile"
	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/config"
)

// TestFailure describes the first test command that failed.
type TestFailure struct {
	// Command is the command name, with a "(N failing)" suffix when
	// only the failing tests were re-run.
	Command string

	// Output is the part of the output worth showing a fixer.
	Output string

	// Summary is one line describing the failure.
	Summary string

	// FailedTests are identifiers the command's filter accepts.
	FailedTests []string

	TimedOut bool
}

type extraction struct {
	ExtractedOutput string   `json:"extracted_output"`
	Summary         string   `json:"summary"`
	FailedTests     []string `json:"failed_tests"`
}

// RunTests runs the test commands selected by the changed files in
// declared order and stops at the first failure, which it returns.
// When failedTests is non-empty, commands with a filter run only
// those tests. A nil failure means every selected command passed.
func (e *Engine) RunTests(ctx context.Context, failedTests []string) (*TestFailure, error) {
	commands := e.tests
	changed, err := e.workspace.ChangedFiles(ctx)
	if err != nil {
		e.logger.Warn("listing changed files, running every test command", "error", err)
	} else {
		commands = Select(e.tests, changed)
	}

	var ran []string
	for _, command := range commands {
		name, script := command.Name, command.Run
		if len(failedTests) > 0 && command.Filter != "" {
			script += " " + renderFilter(command.Filter, failedTests)
			name = fmt.Sprintf("%s (%d failing)", command.Name, len(failedTests))
		}
		ran = append(ran, name)

		timeout := timeoutOr(command, DefaultTestTimeout)
		e.logger.Info("running tests", "command", name)
		result, err := e.runner.Run(ctx, script, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failure := &TestFailure{Command: name, Output: err.Error(), Summary: err.Error()}
			e.reportFailure(failure)
			return failure, nil
		}
		if result.TimedOut {
			failure := &TestFailure{
				Command:  name,
				Output:   timeoutOutput(result.Output, timeout),
				Summary:  fmt.Sprintf("Timed out after %s", formatSeconds(timeout)),
				TimedOut: true,
			}
			e.reportFailure(failure)
			return failure, nil
		}
		if result.Passed() {
			continue
		}

		failure, err := e.extract(ctx, name, result.Output)
		if err != nil {
			return nil, err
		}
		e.writeFailureLog(failure)
		e.reportFailure(failure)
		return failure, nil
	}

	checks := "no checks configured"
	if len(ran) > 0 {
		checks = strings.Join(ran, ", ")
	}
	e.logger.Info("tests passed", "checks", checks)
	return nil, nil
}

// testAndFix runs the tests and, while they fail, asks for a fix and
// re-runs the failing tests, up to MaxFixAttempts times.
func (e *Engine) testAndFix(ctx context.Context, task stepTask) (*TestFailure, error) {
	failure, err := e.RunTests(ctx, nil)
	if err != nil {
		return nil, err
	}
	for attempt := 1; failure != nil && attempt <= MaxFixAttempts; attempt++ {
		e.logger.Info("test fix attempt", "attempt", attempt, "max", MaxFixAttempts, "command", failure.Command)
		problem := fmt.Sprintf("Command %q failed:\n\n%s", failure.Command, failure.Output)
		if err := e.fix(ctx, "test failure", problem, task); err != nil {
			return nil, err
		}
		failure, err = e.RunTests(ctx, failure.FailedTests)
		if err != nil {
			return nil, err
		}
	}
	return failure, nil
}

// extract asks the light model to pull the useful part out of a
// failing command's output. Unusable answers fall back to the head of
// the raw output.
func (e *Engine) extract(ctx context.Context, name, output string) (*TestFailure, error) {
	fallback := &TestFailure{
		Command: name,
		Output:  firstChars(output, fallbackOutputLimit),
		Summary: name + " failed",
	}
	response, err := e.ask(ctx, "test_extraction", map[string]any{
		"Command": name,
		"Output":  lastChars(output, extractionInputLimit),
	}, backend.Request{Light: true})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("test output extraction failed", "command", name, "error", err)
		return fallback, nil
	}
	extracted, err := backend.Decode[extraction](response)
	if err != nil {
		e.logger.Warn("test output extraction unparseable", "command", name, "error", err)
		return fallback, nil
	}
	failure := &TestFailure{
		Command:     name,
		Output:      extracted.ExtractedOutput,
		Summary:     extracted.Summary,
		FailedTests: extracted.FailedTests,
	}
	if failure.Output == "" {
		failure.Output = fallback.Output
	}
	if failure.Summary == "" {
		failure.Summary = fallback.Summary
	}
	return failure, nil
}

func (e *Engine) writeFailureLog(failure *TestFailure) {
	path := e.path(FailureLogPath)
	content := fmt.Sprintf("=== %s failure ===\n\n%s\n", failure.Command, failure.Output)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.logger.Warn("writing test failure log", "error", err)
		return
	}
	if err := atomicfile.Write(path, []byte(content), 0o644); err != nil {
		e.logger.Warn("writing test failure log", "error", err)
	}
}

func (e *Engine) reportFailure(failure *TestFailure) {
	e.logger.Warn("tests failed", "command", failure.Command, "summary", failure.Summary)
}

// renderFilter substitutes each test identifier, shell-quoted, into
// the filter template and joins the results with spaces.
func renderFilter(filter string, tests []string) string {
	rendered := make([]string, len(tests))
	for index, test := range tests {
		rendered[index] = strings.ReplaceAll(filter, "{test}", shellQuote(test))
	}
	return strings.Join(rendered, " ")
}

func timeoutOr(command config.Command, fallback time.Duration) time.Duration {
	if command.Timeout > 0 {
		return command.Timeout
	}
	return fallback
}

func timeoutOutput(output string, timeout time.Duration) string {
	if output == "" {
		return fmt.Sprintf("Test command timed out after %s", formatSeconds(timeout))
	}
	return lastChars(output, fallbackOutputLimit)
}

// formatSeconds renders a duration as whole seconds: "600s".
func formatSeconds(duration time.Duration) string {
	return fmt.Sprintf("%ds", int(duration.Seconds()))
}
