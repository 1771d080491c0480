// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package plan defines the data the work loop operates on: the ordered
// step plan for a unit of work, the file operations each step intends
// to perform, the decision records produced while planning and
// working, and the exploration findings the planner hands to every
// work call.
//
// The package holds data and pure helpers only. Nothing here performs
// I/O; persistence lives in lib/progress and mutation of the live plan
// during a run belongs to lib/workloop.
package plan
