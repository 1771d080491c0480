// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workloop drives one unit of work through its plan.
//
// A [Machine] runs a fixed set of states per iteration:
//
//	SelectStep → ExecuteWork → HandleDecisions → CheckCompletion
//	    → VerifyStep → CommitChanges → SaveState → SelectStep
//
// CheckCompletion skips VerifyStep when the backend did not finish the
// active step, and VerifyStep returns to ExecuteWork while its retry
// budget lasts. An iteration ends at SaveState. The loop ends in
// AllDone when every step is done, or in MaxIterations when the
// iteration budget runs out.
//
// All mutable state lives in a [RunContext] owned by the caller. The
// most recent failure is a single [Failure] value, so the next work
// prompt always carries at most one kind of problem to fix first.
//
// Collaborators are interfaces: the machine never talks to git, the
// tracker, or the terminal directly. Failures that end the run are
// [ErrUnparseableWork], [ErrOperatorQuit], and [ErrCommitRejected];
// state persistence failures are logged and the loop continues.
package workloop
