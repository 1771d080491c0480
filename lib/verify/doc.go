// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify decides whether a step's uncommitted changes are
// acceptable.
//
// [Engine.VerifyStep] runs three gates in order: a completion check
// that asks the backend whether the step's goal was met, the configured
// test commands with a bounded test-fix loop, and a lightweight review
// with a bounded review-fix loop and a repeated-issue circuit breaker.
// Every failure the engine can recover from is reported in the
// returned [Result]; the only error VerifyStep returns is context
// cancellation.
//
// The package also runs the other command phases of a session: format
// commands before a commit ([Engine.RunFormat]), setup commands in a
// fresh worktree ([Engine.RunSetup]), the parallel preflight
// ([Engine.RunPreflight]), and the coverage gate ([Engine.Coverage]).
//
// Commands are selected by the files they care about: a command with
// path globs runs only when a changed file matches one of them (see
// [ShouldRun]).
package verify
