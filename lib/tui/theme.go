// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette for terminal output. Colors are ANSI 256
// codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Decision and step states.
	Accepted lipgloss.Color
	Rejected lipgloss.Color
	Manual   lipgloss.Color
	Done     lipgloss.Color

	// Diff lines when no lexer is available.
	DiffAdded   lipgloss.Color
	DiffRemoved lipgloss.Color
	DiffHunk    lipgloss.Color

	// HighlightStyle is the chroma style name for code and diffs.
	HighlightStyle string
}

// DefaultTheme targets 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	Accepted: lipgloss.Color("114"), // green
	Rejected: lipgloss.Color("245"), // gray
	Manual:   lipgloss.Color("220"), // amber
	Done:     lipgloss.Color("114"),

	DiffAdded:   lipgloss.Color("114"),
	DiffRemoved: lipgloss.Color("203"),
	DiffHunk:    lipgloss.Color("75"),

	HighlightStyle: "monokai",
}
