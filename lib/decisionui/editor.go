// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package decisionui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/lisa/lib/plan"
)

// Editor runs the decision editor on a terminal.
type Editor struct {
	// In and Out default to the process's stdin and stdout.
	In  io.Reader
	Out io.Writer
}

// Review shows decisions to the operator and returns their edits and
// how they left. An empty list is returned unchanged without showing
// anything.
func (e *Editor) Review(ctx context.Context, title string, decisions []plan.Decision) (Result, error) {
	if len(decisions) == 0 {
		return Result{Decisions: decisions, Action: ActionContinue}, nil
	}
	options := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if e.In != nil {
		options = append(options, tea.WithInput(e.In))
	}
	if e.Out != nil {
		options = append(options, tea.WithOutput(e.Out))
	}
	final, err := tea.NewProgram(NewModel(title, decisions), options...).Run()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("decision editor: %w", err)
	}
	return final.(Model).Result(), nil
}

// Edit is Review for the work loop, where regenerating the plan is not
// offered: replan counts as confirm, and ok is false when the operator
// quit.
func (e *Editor) Edit(ctx context.Context, title string, decisions []plan.Decision) ([]plan.Decision, bool, error) {
	result, err := e.Review(ctx, title, decisions)
	if err != nil {
		return nil, false, err
	}
	if result.Action == ActionQuit {
		return nil, false, nil
	}
	return result.Decisions, true, nil
}
