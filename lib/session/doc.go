// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session runs one lisa invocation over a list of units.
//
// For each unit, strictly in order, a session fetches the unit from
// the tracker, allocates or reuses its work branch, recovers the
// branch's progress from the tracker comment, the local snapshot, and
// the commit trailers, plans the work when no plan survives (with an
// optional operator review and replan loop), and hands the result to a
// [workloop.Machine]. Units that exhaust their iteration budget are
// reported as failed; errors the work loop treats as fatal stop the
// whole session.
//
// A session can run inside a scratch worktree created from HEAD, in
// which case setup commands and the optional preflight run there
// first, and the worktree is removed when the session ends, including
// on interrupt. Without a worktree the repository is protected by the
// run lock in lib/runlock.
//
// The read-only modes live here too: [Session.Status] renders a unit's
// progress document, [Session.ReviewOnly] runs the final review on the
// current branch, and [Session.Conclude] writes the review guide.
package session
