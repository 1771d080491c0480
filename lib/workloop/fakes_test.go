// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/backend/backendtest"
	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/config"
	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/tracker"
	"github.com/bureau-foundation/lisa/lib/verify"
)

// Prompt fragments the fake backend matches on.
const (
	workPrompt       = "You are implementing"
	summaryPrompt    = "Summarize this step description"
	hookFixPrompt    = "A git commit hook rejected"
	conclusionPrompt = "Write a review guide"
)

type commitCall struct {
	message  string
	noVerify bool
	files    []string
}

// fakeVCS keeps a list of uncommitted files. A successful commit
// moves them to the branch.
type fakeVCS struct {
	mu         sync.Mutex
	changed    []string
	staged     []string
	branch     []string
	commits    []commitCall
	commitErrs []error
	pushes     int
	messages   []string
}

// touch marks files modified. Like git status, a file already
// modified is listed once.
func (v *fakeVCS) touch(files ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, file := range files {
		if !slices.Contains(v.changed, file) {
			v.changed = append(v.changed, file)
		}
	}
}

func (v *fakeVCS) ChangedFiles(context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.changed...), nil
}

func (v *fakeVCS) Diff(context.Context, string) (string, error) {
	return "diff --git a/app.go b/app.go\n+package app\n", nil
}

func (v *fakeVCS) DiffSummary(context.Context) (string, error) { return "1 file changed", nil }

func (v *fakeVCS) Add(_ context.Context, paths ...string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.staged = append([]string(nil), paths...)
	return nil
}

func (v *fakeVCS) Commit(_ context.Context, message string, noVerify bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.commitErrs) > 0 {
		err := v.commitErrs[0]
		v.commitErrs = v.commitErrs[1:]
		if err != nil {
			return err
		}
	}
	v.commits = append(v.commits, commitCall{message: message, noVerify: noVerify, files: v.staged})
	v.messages = append([]string{message}, v.messages...)
	v.branch = append(v.branch, v.staged...)
	v.changed = nil
	return nil
}

func (v *fakeVCS) HeadShort(context.Context) (string, error) { return "abc1234", nil }

func (v *fakeVCS) Push(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pushes++
	return nil
}

func (v *fakeVCS) ChangedSince(context.Context, string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.branch...), nil
}

func (v *fakeVCS) BranchDiff(context.Context, string) (string, error) { return "diff", nil }

func (v *fakeVCS) OnelineLog(context.Context, string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var titles []string
	for _, message := range v.messages {
		title, _, _ := strings.Cut(message, "\n")
		titles = append(titles, "abc1234 "+title)
	}
	return titles, nil
}

func (v *fakeVCS) LogMessages(context.Context, string, string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.messages...), nil
}

func (v *fakeVCS) commitLog() []commitCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]commitCall(nil), v.commits...)
}

// fakeVerifier answers VerifyStep from a list, repeating the last
// result.
type fakeVerifier struct {
	mu        sync.Mutex
	results   []verify.Result
	verified  []int
	report    verify.Report
	coverage  []verify.CoverageResult
	coverFix  int
	testRuns  int
	formatted int
}

func (f *fakeVerifier) VerifyStep(_ context.Context, step plan.Step, _ string) (verify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, step.ID)
	if len(f.results) == 0 {
		return verify.Result{Passed: true}, nil
	}
	index := min(len(f.verified)-1, len(f.results)-1)
	return f.results[index], nil
}

func (f *fakeVerifier) RunFormat(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formatted++
	return nil
}

func (f *fakeVerifier) RunTests(context.Context, []string) (*verify.TestFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.testRuns++
	return nil, nil
}

func (f *fakeVerifier) Review(context.Context, verify.ReviewRequest) (verify.Report, error) {
	return f.report, nil
}

func (f *fakeVerifier) Coverage(context.Context, []string) (verify.CoverageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.coverage) == 0 {
		return verify.CoverageResult{}, nil
	}
	result := f.coverage[0]
	if len(f.coverage) > 1 {
		f.coverage = f.coverage[1:]
	}
	return result, nil
}

func (f *fakeVerifier) FixCoverage(context.Context, []string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coverFix++
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	documents []progress.Document
}

func (s *fakeStore) Save(_ context.Context, _, _ string, document progress.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = append(s.documents, document)
	return "comment-1", nil
}

func (s *fakeStore) last() progress.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documents[len(s.documents)-1]
}

type fakeSnapshots struct {
	saved []progress.Snapshot
}

func (s *fakeSnapshots) Save(snapshot progress.Snapshot) error {
	s.saved = append(s.saved, snapshot)
	return nil
}

type fakeChildren map[string]tracker.ChildDetails

func (c fakeChildren) FetchChild(_ context.Context, id string) (tracker.ChildDetails, error) {
	child, ok := c[id]
	if !ok {
		return tracker.ChildDetails{}, fmt.Errorf("no child %s", id)
	}
	return child, nil
}

// fakeEditor deselects every record, or quits.
type fakeEditor struct {
	quit   bool
	titles []string
}

func (e *fakeEditor) Edit(_ context.Context, title string, decisions []plan.Decision) ([]plan.Decision, bool, error) {
	e.titles = append(e.titles, title)
	if e.quit {
		return nil, false, nil
	}
	edited := append([]plan.Decision(nil), decisions...)
	for index := range edited {
		edited[index].Selected = false
	}
	return edited, true, nil
}

type harness struct {
	machine   *Machine
	backend   *backendtest.Fake
	vcs       *fakeVCS
	verifier  *fakeVerifier
	store     *fakeStore
	snapshots *fakeSnapshots
	clock     *clock.FakeClock
}

func newHarness(t *testing.T, configure func(*Config), rules ...backendtest.Rule) *harness {
	t.Helper()
	prompts, err := config.Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	h := &harness{
		backend:   backendtest.New(rules...),
		vcs:       &fakeVCS{},
		verifier:  &fakeVerifier{report: verify.Report{Approved: true, Summary: "looks good"}},
		store:     &fakeStore{},
		snapshots: &fakeSnapshots{},
		clock:     clock.Fake(time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)),
	}
	h.backend.On(summaryPrompt, backendtest.Text("add the thing"))
	h.backend.On(conclusionPrompt, backendtest.JSON(progress.ReviewGuide{Purpose: "Adds the thing", Flow: "main calls thing"}))

	machineConfig := Config{
		Backend:       h.backend,
		Prompts:       prompts,
		Verifier:      h.verifier,
		VCS:           h.vcs,
		Store:         h.store,
		Snapshots:     h.snapshots,
		Clock:         h.clock,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		BaseBranch:    "main",
		MaxIterations: 10,
		AllowNoVerify: true,
	}
	if configure != nil {
		configure(&machineConfig)
	}
	h.machine, err = New(machineConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

// finishes answers work calls by touching a file and reporting the
// step named in the prompt as done.
func (h *harness) finishes() backendtest.Rule {
	return backendtest.Rule{Match: workPrompt, Respond: func(request backend.Request, call int) (backend.Response, error) {
		step := currentStep(request.Prompt)
		h.vcs.touch(fmt.Sprintf("step%d_%d.go", step, call))
		return structured(map[string]any{"step_done": step, "summary": "done"}), nil
	}}
}

// editsApp answers work calls the way a retry usually does: every
// attempt edits the same file and reports the step done.
func (h *harness) editsApp(assumptions ...plan.Decision) backendtest.Rule {
	return backendtest.Rule{Match: workPrompt, Respond: func(request backend.Request, call int) (backend.Response, error) {
		h.vcs.touch("app.go")
		return structured(map[string]any{
			"step_done":   currentStep(request.Prompt),
			"summary":     "edited app.go",
			"assumptions": assumptions,
		}), nil
	}}
}

func currentStep(prompt string) int {
	var step int
	_, rest, _ := strings.Cut(prompt, "## Current step: ")
	fmt.Sscanf(rest, "%d.", &step)
	return step
}

func structured(value any) backend.Response {
	data, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return backend.Response{Structured: data}
}

func unit() Unit {
	return Unit{ID: "ENG-1", Key: "ENG-1", Title: "Add the thing", Description: "Make the thing work", Branch: "lisa/eng-1-thing"}
}

func twoSteps() progress.State {
	return progress.State{Steps: plan.Plan{
		{ID: 1, Description: "Add schema"},
		{ID: 2, Description: "Wire handler"},
	}}
}
