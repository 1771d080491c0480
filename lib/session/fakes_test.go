// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/backend/backendtest"
	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/config"
	"github.com/bureau-foundation/lisa/lib/decisionui"
	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/tracker"
)

// Prompt fragments the fake backend matches on.
const (
	slugPrompt       = "Produce a short git branch slug"
	planningPrompt   = "You are planning the implementation"
	workPrompt       = "You are implementing"
	summaryPrompt    = "Summarize this step description"
	reviewPrompt     = "Review the complete change"
	conclusionPrompt = "Write a review guide"
)

// fakeTracker serves units from a map and keeps comments in memory.
type fakeTracker struct {
	mu       sync.Mutex
	units    map[string]tracker.Unit
	comments map[string][]tracker.Comment
	nextID   int
}

func newFakeTracker(units ...tracker.Unit) *fakeTracker {
	fake := &fakeTracker{units: map[string]tracker.Unit{}, comments: map[string][]tracker.Comment{}}
	for _, unit := range units {
		fake.units[unit.ID] = unit
	}
	return fake
}

func (f *fakeTracker) FetchUnit(_ context.Context, id string) (tracker.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unit, ok := f.units[id]
	if !ok {
		return tracker.Unit{}, fmt.Errorf("issue %s: %w", id, tracker.ErrNotFound)
	}
	return unit, nil
}

func (f *fakeTracker) FetchChild(_ context.Context, id string) (tracker.ChildDetails, error) {
	return tracker.ChildDetails{ID: id, Title: "child " + id}, nil
}

func (f *fakeTracker) ListComments(_ context.Context, issueKey string) ([]tracker.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracker.Comment(nil), f.comments[issueKey]...), nil
}

func (f *fakeTracker) CreateComment(_ context.Context, issueKey, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("comment-%d", f.nextID)
	f.comments[issueKey] = append(f.comments[issueKey], tracker.Comment{ID: id, Body: body})
	return id, nil
}

func (f *fakeTracker) UpdateComment(_ context.Context, commentID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, comments := range f.comments {
		for index := range comments {
			if comments[index].ID == commentID {
				f.comments[key][index].Body = body
				return nil
			}
		}
	}
	return fmt.Errorf("comment %s: %w", commentID, tracker.ErrNotFound)
}

func (f *fakeTracker) bodies(issueKey string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var bodies []string
	for _, comment := range f.comments[issueKey] {
		bodies = append(bodies, comment.Body)
	}
	return bodies
}

// recordingDisplay keeps everything shown.
type recordingDisplay struct {
	mu       sync.Mutex
	markdown []string
	diffs    []string
}

func (d *recordingDisplay) ShowDiff(diff string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.diffs = append(d.diffs, diff)
}

func (d *recordingDisplay) ShowMarkdown(markdown string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.markdown = append(d.markdown, markdown)
}

func (d *recordingDisplay) all() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.markdown, "\n")
}

// scriptedEditor answers Review calls from a list of results.
type scriptedEditor struct {
	results []func([]plan.Decision) decisionui.Result
	seen    [][]plan.Decision
}

func (e *scriptedEditor) Review(_ context.Context, _ string, decisions []plan.Decision) (decisionui.Result, error) {
	e.seen = append(e.seen, decisions)
	index := min(len(e.seen)-1, len(e.results)-1)
	return e.results[index](decisions), nil
}

func (e *scriptedEditor) Edit(_ context.Context, _ string, decisions []plan.Decision) ([]plan.Decision, bool, error) {
	return decisions, true, nil
}

// harness wires a session over a real repository and a scripted
// backend.
type harness struct {
	t        *testing.T
	dir      string
	settings *config.Config
	tracker  *fakeTracker
	backend  *backendtest.Fake
	display  *recordingDisplay
	editor   *scriptedEditor

	mu sync.Mutex
	// workDir is the directory the most recent backend was created
	// for; the work rule writes files there.
	workDir string
}

func newHarness(t *testing.T, units ...tracker.Unit) *harness {
	t.Helper()
	defaults, err := config.Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	settings := *defaults
	settings.Worktree.Root = t.TempDir()

	h := &harness{
		t:        t,
		dir:      initRepo(t),
		settings: &settings,
		tracker:  newFakeTracker(units...),
		display:  &recordingDisplay{},
		editor:   &scriptedEditor{},
	}
	h.backend = backendtest.New(
		backendtest.Rule{Match: slugPrompt, Respond: backendtest.JSON(map[string]string{"slug": "Add Widget!"})},
		backendtest.Rule{Match: planningPrompt, Respond: backendtest.JSON(map[string]any{
			"steps": []map[string]any{
				{"id": 1, "description": "Create widget"},
				{"id": 2, "description": "Test widget"},
			},
			"assumptions": []map[string]any{
				{"id": "a", "selected": true, "statement": "Use the standard library"},
			},
		})},
		backendtest.Rule{Match: workPrompt, Respond: h.finishStep},
		backendtest.Rule{Match: summaryPrompt, Respond: backendtest.Text("add widget")},
		backendtest.Rule{Match: conclusionPrompt, Respond: backendtest.Text("Read widget.go first.")},
	)
	return h
}

// finishStep writes a file for the prompt's current step and reports
// the step done.
func (h *harness) finishStep(request backend.Request, _ int) (backend.Response, error) {
	var step int
	_, rest, _ := strings.Cut(request.Prompt, "## Current step: ")
	fmt.Sscanf(rest, "%d.", &step)

	h.mu.Lock()
	dir := h.workDir
	h.mu.Unlock()
	name := filepath.Join(dir, fmt.Sprintf("step%d.txt", step))
	if err := os.WriteFile(name, []byte("done\n"), 0o644); err != nil {
		return backend.Response{}, err
	}
	return backendtest.JSON(map[string]any{"step_done": step, "summary": "did it"})(request, 0)
}

func (h *harness) session(options Options) *Session {
	h.t.Helper()
	s, err := New(Config{
		Settings: h.settings,
		Options:  options,
		Tracker:  h.tracker,
		Backend: func(dir string) (backend.Backend, error) {
			h.mu.Lock()
			h.workDir = dir
			h.mu.Unlock()
			return h.backend, nil
		},
		Meter:   &backend.Meter{},
		Dir:     h.dir,
		Editor:  h.editor,
		Display: h.display,
		Clock:   clock.Fake(time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		h.t.Fatalf("New: %v", err)
	}
	return s
}

func widgetUnit() tracker.Unit {
	return tracker.Unit{
		Key:         "key-1",
		ID:          "ENG-1",
		Title:       "Add widget",
		Description: "Widgets everywhere.",
		URL:         "https://linear.app/acme/issue/ENG-1",
	}
}

// initRepo creates a working tree on branch "main" with one commit
// and a local identity. The .lisa directory is excluded so run state
// never shows up as a change.
func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.name", "Test"},
		{"config", "user.email", "test@test.local"},
		{"config", "commit.gpgsign", "false"},
	} {
		gitCommand(t, dir, args...)
	}
	exclude := filepath.Join(dir, ".git", "info", "exclude")
	if err := os.WriteFile(exclude, []byte(".lisa/\n"), 0o644); err != nil {
		t.Fatalf("writing exclude: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("test\n"), 0o644); err != nil {
		t.Fatalf("writing README: %v", err)
	}
	gitCommand(t, dir, "add", "README")
	gitCommand(t, dir, "commit", "-m", "initial")
	return dir
}

func gitCommand(t *testing.T, dir string, args ...string) string {
	t.Helper()
	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return string(output)
}
