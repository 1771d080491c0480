// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package termrender

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/bureau-foundation/lisa/lib/tui"
)

// DefaultWidth is used when the writer is not a terminal.
const DefaultWidth = 100

// Renderer writes styled output to a terminal.
type Renderer struct {
	mu      sync.Mutex
	out     io.Writer
	theme   tui.Theme
	width   int
	profile termenv.Profile
	styles  *lipgloss.Renderer
}

// New returns a Renderer for out. Color and width are detected when
// out is a terminal; otherwise output is plain at DefaultWidth.
func New(out io.Writer) *Renderer {
	width := DefaultWidth
	profile := termenv.Ascii
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if columns, _, err := term.GetSize(int(file.Fd())); err == nil && columns > 0 {
			width = columns
		}
		profile = termenv.NewOutput(file).EnvColorProfile()
	}
	return NewWithProfile(out, profile, width)
}

// NewWithProfile returns a Renderer with a fixed color profile and
// width.
func NewWithProfile(out io.Writer, profile termenv.Profile, width int) *Renderer {
	styles := lipgloss.NewRenderer(out, termenv.WithProfile(profile))
	// lipgloss re-detects the profile from the environment unless it
	// is set explicitly.
	styles.SetColorProfile(profile)
	if width <= 0 {
		width = DefaultWidth
	}
	return &Renderer{
		out:     out,
		theme:   tui.DefaultTheme,
		width:   width,
		profile: profile,
		styles:  styles,
	}
}

// Colored reports whether output carries ANSI styling.
func (r *Renderer) Colored() bool {
	return r.profile != termenv.Ascii
}

// ShowMarkdown renders markdown and writes it.
func (r *Renderer) ShowMarkdown(markdown string) {
	r.write(r.Markdown(markdown))
}

// ShowDiff renders a unified diff and writes it.
func (r *Renderer) ShowDiff(diff string) {
	r.write(r.Diff(diff))
}

func (r *Renderer) write(rendered string) {
	if rendered == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, rendered)
}

func (r *Renderer) style() lipgloss.Style {
	return r.styles.NewStyle()
}
