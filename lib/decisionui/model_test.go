// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package decisionui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/lisa/lib/plan"
)

func sampleDecisions() []plan.Decision {
	return []plan.Decision{
		{ID: "P.1", Selected: true, Statement: "Reuse the session store", Rationale: "already indexed"},
		{ID: "P.2", Selected: true, Statement: "Skip the migration"},
		{ID: "P.3", Selected: false, Statement: "MANUAL: rotate the API key", Rationale: plan.BlockedRationale},
	}
}

func runes(text string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

var (
	space     = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	enter     = tea.KeyMsg{Type: tea.KeyEnter}
	escape    = tea.KeyMsg{Type: tea.KeyEsc}
	replan    = tea.KeyMsg{Type: tea.KeyCtrlR}
	clearLine = tea.KeyMsg{Type: tea.KeyCtrlU}
)

// press feeds messages to the model in order and returns it.
func press(t *testing.T, model Model, messages ...tea.Msg) Model {
	t.Helper()
	for _, message := range messages {
		updated, _ := model.Update(message)
		model = updated.(Model)
	}
	return model
}

func TestModelToggleAndConfirm(t *testing.T) {
	t.Parallel()

	original := sampleDecisions()
	model := press(t, NewModel("ENG-1: Add login", original), runes("j"), space, enter)

	result := model.Result()
	if result.Action != ActionContinue {
		t.Fatalf("action = %s, want continue", result.Action)
	}
	if result.Decisions[1].Selected {
		t.Error("P.2 still selected after toggling")
	}
	if !result.Decisions[0].Selected {
		t.Error("P.1 changed without being toggled")
	}
	if !original[1].Selected {
		t.Error("the editor mutated its input")
	}
}

func TestModelNavigationClamps(t *testing.T) {
	t.Parallel()

	model := press(t, NewModel("", sampleDecisions()), runes("k"), runes("k"))
	if model.cursor != 0 {
		t.Errorf("cursor = %d after moving up from the top", model.cursor)
	}
	model = press(t, model, runes("j"), runes("j"), runes("j"), runes("j"))
	if model.cursor != 2 {
		t.Errorf("cursor = %d after moving past the end, want 2", model.cursor)
	}
}

func TestModelEditRationale(t *testing.T) {
	t.Parallel()

	model := press(t, NewModel("", sampleDecisions()), runes("e"))
	if !model.editing {
		t.Fatal("e did not start editing")
	}
	if got := model.input.Value(); got != "already indexed" {
		t.Errorf("input prefilled with %q", got)
	}

	model = press(t, model, clearLine, runes("q"), runes("uery is hot "), enter)
	if model.editing {
		t.Fatal("enter did not finish editing")
	}
	if model.finished {
		t.Fatal("typing q while editing quit the editor")
	}
	if got := model.decisions[0].Rationale; got != "query is hot" {
		t.Errorf("rationale = %q, want %q", got, "query is hot")
	}

	model = press(t, model, runes("e"), runes(" and cached"), escape)
	if got := model.decisions[0].Rationale; got != "query is hot" {
		t.Errorf("escape kept the edit: %q", got)
	}
}

func TestModelActions(t *testing.T) {
	t.Parallel()

	if result := press(t, NewModel("", sampleDecisions()), replan).Result(); result.Action != ActionReplan || len(result.Decisions) != 3 {
		t.Errorf("ctrl+r result = %+v", result)
	}
	if result := press(t, NewModel("", sampleDecisions()), runes("q")).Result(); result.Action != ActionQuit || result.Decisions != nil {
		t.Errorf("q result = %+v", result)
	}
	if result := NewModel("", sampleDecisions()).Result(); result.Action != ActionQuit {
		t.Errorf("unfinished model action = %s, want quit", result.Action)
	}

	_, command := NewModel("", sampleDecisions()).Update(enter)
	if command == nil {
		t.Fatal("enter returned no command")
	}
	if _, ok := command().(tea.QuitMsg); !ok {
		t.Error("enter did not quit the program")
	}
}

func TestModelView(t *testing.T) {
	t.Parallel()

	model := press(t, NewModel("ENG-1 step 2: Wire handler", sampleDecisions()), tea.WindowSizeMsg{Width: 60, Height: 20})
	view := ansi.Strip(model.View())

	for _, want := range []string{
		"Decisions",
		"ENG-1 step 2: Wire handler",
		"> [x] P.1. Reuse the session store",
		"  [x] P.2. Skip the migration",
		"  [!] P.3. MANUAL: rotate the API key",
		"-> already indexed",
		"space toggle",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if lines := strings.Split(view, "\n"); len(lines) != 20 {
		t.Errorf("view has %d lines, want the window height 20", len(lines))
	}

	editing := press(t, model, runes("e"))
	if view := ansi.Strip(editing.View()); !strings.Contains(view, "Rationale: ") || !strings.Contains(view, "esc cancel") {
		t.Errorf("editing view lacks the input line:\n%s", view)
	}

	small := press(t, model, tea.WindowSizeMsg{Width: 30, Height: 5})
	if small.View() != "Terminal too small" {
		t.Errorf("small view = %q", small.View())
	}
}

func TestModelViewScrollsToCursor(t *testing.T) {
	t.Parallel()

	var many []plan.Decision
	for index := range 20 {
		many = append(many, plan.Decision{ID: "1." + string(rune('a'+index)), Selected: true, Statement: "decision"})
	}
	model := press(t, NewModel("", many), tea.WindowSizeMsg{Width: 60, Height: 12})
	for range 19 {
		model = press(t, model, runes("j"))
	}
	if view := ansi.Strip(model.View()); !strings.Contains(view, "> [x] 1.t. decision") {
		t.Errorf("cursor item not visible:\n%s", view)
	}
}

func TestEditorEmptyListSkipsProgram(t *testing.T) {
	t.Parallel()

	editor := &Editor{In: strings.NewReader(""), Out: &bytes.Buffer{}}
	edited, ok, err := editor.Edit(context.Background(), "title", nil)
	if err != nil || !ok || edited != nil {
		t.Errorf("Edit(nil) = %v, %v, %v", edited, ok, err)
	}
}

func TestEditorRunsProgram(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	editor := &Editor{In: strings.NewReader("j \r"), Out: &bytes.Buffer{}}
	edited, ok, err := editor.Edit(ctx, "ENG-1", sampleDecisions())
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !ok {
		t.Fatal("Edit reported a quit")
	}
	if edited[1].Selected {
		t.Error("P.2 still selected")
	}
}
