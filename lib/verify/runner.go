// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/bureau-foundation/lisa/lib/clock"
)

// Runner executes shell command lines.
type Runner interface {
	// Run executes script and waits for it. A non-zero exit or an
	// expired timeout is reported in the result, not as an error. The
	// error is non-nil only when the command could not be started or
	// ctx itself was cancelled.
	Run(ctx context.Context, script string, timeout time.Duration) (RunResult, error)
}

// RunResult is the outcome of one command.
type RunResult struct {
	// Output is stdout and stderr interleaved.
	Output   string
	ExitCode int
	TimedOut bool
	Elapsed  time.Duration
}

// Passed reports whether the command exited zero within its timeout.
func (r RunResult) Passed() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// ShellRunner runs commands through "sh -c" in Dir.
type ShellRunner struct {
	// Dir is the working directory. Empty means the process's.
	Dir string

	// Clock times each command. Nil means the real clock.
	Clock clock.Clock
}

// Run implements [Runner].
//
// The command runs in its own process group so that a timeout kills
// the shell and everything it started. Children that keep the output
// pipe open after the group is killed are abandoned after a short
// delay.
func (r ShellRunner) Run(ctx context.Context, script string, timeout time.Duration) (RunResult, error) {
	runContext := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runContext, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(runContext, "sh", "-c", script)
	cmd.Dir = r.Dir
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	runnerClock := r.Clock
	if runnerClock == nil {
		runnerClock = clock.Real()
	}
	start := runnerClock.Now()
	err := cmd.Run()
	result := RunResult{Output: output.String(), Elapsed: clock.Since(runnerClock, start)}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if runContext.Err() != nil {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	if err == nil {
		return result, nil
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		result.ExitCode = exitError.ExitCode()
		return result, nil
	}
	return result, fmt.Errorf("running %q: %w", script, err)
}

// shellQuote returns s quoted for sh. Strings made only of safe
// characters are returned as-is.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(char rune) bool { return !isShellSafe(char) }) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(char rune) bool {
	switch {
	case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char >= '0' && char <= '9':
		return true
	}
	return strings.ContainsRune("-_./:=@%+,", char)
}

// lastChars returns the final limit bytes of s, aligned to a rune
// boundary.
func lastChars(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	start := len(s) - limit
	for start < len(s) && !isRuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// firstChars returns the first limit bytes of s, aligned to a rune
// boundary.
func firstChars(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	end := limit
	for end > 0 && !isRuneStart(s[end]) {
		end--
	}
	return s[:end]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
