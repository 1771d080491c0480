// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the palette shared by lisa's terminal output: the
// markdown and diff renderer in lib/termrender and the decision editor
// in lib/decisionui.
package tui
