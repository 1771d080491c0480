// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package termrender

import (
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/x/ansi"
)

// Diff renders a unified diff. Lines wider than the terminal are
// truncated rather than wrapped so hunks stay aligned.
func (r *Renderer) Diff(diff string) string {
	diff = strings.TrimRight(diff, "\n")
	if diff == "" {
		return ""
	}
	lines := strings.Split(diff, "\n")
	for index, line := range lines {
		lines[index] = ansi.Truncate(line, r.width, "…")
	}
	plain := strings.Join(lines, "\n")
	if !r.Colored() {
		return plain
	}

	var highlighted strings.Builder
	if err := quick.Highlight(&highlighted, plain+"\n", "diff", "terminal256", r.theme.HighlightStyle); err == nil {
		return strings.TrimRight(highlighted.String(), "\n")
	}
	return r.colorDiffLines(lines)
}

// colorDiffLines is the fallback when chroma cannot highlight.
func (r *Renderer) colorDiffLines(lines []string) string {
	added := r.style().Foreground(r.theme.DiffAdded)
	removed := r.style().Foreground(r.theme.DiffRemoved)
	hunk := r.style().Foreground(r.theme.DiffHunk)
	faint := r.style().Foreground(r.theme.FaintText)

	styled := make([]string, len(lines))
	for index, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "diff "):
			styled[index] = faint.Render(line)
		case strings.HasPrefix(line, "+"):
			styled[index] = added.Render(line)
		case strings.HasPrefix(line, "-"):
			styled[index] = removed.Render(line)
		case strings.HasPrefix(line, "@@"):
			styled[index] = hunk.Render(line)
		default:
			styled[index] = line
		}
	}
	return strings.Join(styled, "\n")
}
