// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package decisionui is the interactive editor for decision records.
//
// The operator moves through the list, toggles which records are
// accepted, and rewrites rationales. Enter confirms, ctrl+r asks for
// the plan to be regenerated with the edited records, and q quits. The
// editor is a bubbletea program; [Model] can be driven directly in
// tests by feeding it key messages.
package decisionui
