// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// lisa works through tracker units: it plans each unit into steps,
// implements and verifies them one at a time with a generation
// backend, and records progress on the unit so runs resume.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/lisa/cmd/lisa/commands"
	"github.com/bureau-foundation/lisa/lib/process"
)

func main() {
	ctx, stop := process.SignalContext(context.Background())
	err := commands.Root().Execute(ctx, os.Args[1:])
	code := exitCode(ctx, err)
	stop()
	os.Exit(code)
}

// exitCode prints err unless the command already reported it, and
// maps it to the process exit status.
func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}
	// Commands that print their own result (like review) return an
	// error carrying the exit code; no extra "error:" line for those.
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return process.ExitCode(ctx, err)
}
