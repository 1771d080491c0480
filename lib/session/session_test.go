// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/backend/backendtest"
	"github.com/bureau-foundation/lisa/lib/config"
	"github.com/bureau-foundation/lisa/lib/decisionui"
	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/runlock"
	"github.com/bureau-foundation/lisa/lib/tracker"
	"github.com/bureau-foundation/lisa/lib/workloop"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	settings, err := config.Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	valid := func() Config {
		return Config{
			Settings: settings,
			Tracker:  newFakeTracker(),
			Backend:  func(string) (backend.Backend, error) { return backendtest.New(), nil },
			Display:  &recordingDisplay{},
			Dir:      t.TempDir(),
		}
	}
	if _, err := New(valid()); err != nil {
		t.Fatalf("New(valid): %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"settings", func(c *Config) { c.Settings = nil }},
		{"tracker", func(c *Config) { c.Tracker = nil }},
		{"backend", func(c *Config) { c.Backend = nil }},
		{"display", func(c *Config) { c.Display = nil }},
		{"dir", func(c *Config) { c.Dir = "" }},
		{"interactive without editor", func(c *Config) { c.Options.Interactive = true }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			invalid := valid()
			test.mutate(&invalid)
			if _, err := New(invalid); err == nil {
				t.Error("New should fail")
			}
		})
	}
}

func TestRun_PlansAndCompletes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	summary, err := h.session(Options{Units: []string{"ENG-1"}, SkipVerify: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := summary.Err(); err != nil {
		t.Fatalf("Summary.Err: %v", err)
	}
	if len(summary.Completed) != 1 || summary.Completed[0] != "ENG-1" {
		t.Errorf("Completed = %v", summary.Completed)
	}

	branch := strings.TrimSpace(gitCommand(t, h.dir, "branch", "--show-current"))
	if branch != "eng-1-add-widget" {
		t.Errorf("branch = %q, want eng-1-add-widget", branch)
	}
	log := gitCommand(t, h.dir, "log", "--format=%s", "main..HEAD")
	for _, want := range []string{"feat(lisa): [ENG-1] step 1: add widget", "feat(lisa): [ENG-1] step 2: add widget"} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}
	if got := h.backend.Count(planningPrompt); got != 1 {
		t.Errorf("planning calls = %d, want 1", got)
	}

	bodies := h.tracker.bodies("key-1")
	if len(bodies) != 1 {
		t.Fatalf("comments = %d, want 1 document updated in place", len(bodies))
	}
	document, ok := progress.Parse(bodies[0])
	if !ok {
		t.Fatalf("comment is not a progress document:\n%s", bodies[0])
	}
	if document.Steps.Remaining() != 0 || len(document.Steps) != 2 {
		t.Errorf("document steps = %+v", document.Steps)
	}
	if len(document.Decisions) != 1 || document.Decisions[0].ID != "P.1" {
		t.Errorf("document decisions = %+v, want one P.1 record", document.Decisions)
	}
	if !strings.Contains(bodies[0], "## Review Guide") {
		t.Errorf("document has no review guide:\n%s", bodies[0])
	}

	snapshotPath := filepath.Join(h.dir, ".lisa", "state", "ENG-1", "eng-1-add-widget.snap")
	if _, err := os.Stat(snapshotPath); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}
	committed := gitCommand(t, h.dir, "log", "--name-only", "--format=", "main..HEAD")
	if strings.Contains(committed, ".snap") {
		t.Errorf("snapshot was committed:\n%s", committed)
	}
	if commits := strings.Fields(gitCommand(t, h.dir, "rev-list", "main..HEAD")); len(commits) != 2 {
		t.Errorf("commits on branch = %d, want exactly the 2 step commits:\n%s", len(commits), log)
	}
	if status := gitCommand(t, h.dir, "status", "--porcelain", "--untracked-files=all"); strings.TrimSpace(status) != "" {
		t.Errorf("working tree not clean after Run:\n%s", status)
	}
	lock, err := runlock.AcquireRepo(h.dir)
	if err != nil {
		t.Fatalf("run lock still held after Run: %v", err)
	}
	lock.Release()
}

func TestRun_ResumesRecoveredPlan(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	gitCommand(t, h.dir, "checkout", "-b", "eng-1-add-widget")
	document := progress.Document{
		Branch:      "eng-1-add-widget",
		Iteration:   4,
		CurrentStep: 2,
		Steps: plan.Plan{
			{ID: 1, Description: "Create widget", Done: true},
			{ID: 2, Description: "Test widget"},
		},
	}
	if _, err := h.tracker.CreateComment(context.Background(), "key-1", document.Render()); err != nil {
		t.Fatalf("CreateComment: %v", err)
	}

	summary, err := h.session(Options{Units: []string{"ENG-1"}, SkipVerify: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Completed) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if h.backend.Count(planningPrompt) != 0 || h.backend.Count(slugPrompt) != 0 {
		t.Error("a recovered plan on the unit branch should skip slug and planning")
	}
	if got := h.backend.Count(workPrompt); got != 1 {
		t.Errorf("work calls = %d, want 1 for the one pending step", got)
	}
	message := gitCommand(t, h.dir, "log", "-1", "--format=%B")
	if !strings.Contains(message, "step 2:") || !strings.Contains(message, "Lisa-Iteration: 5") {
		t.Errorf("resumed commit = %q, want step 2 at iteration 5", message)
	}
}

func TestRun_AlreadyComplete(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	gitCommand(t, h.dir, "checkout", "-b", "eng-1-add-widget")
	document := progress.Document{
		Branch: "eng-1-add-widget",
		Steps:  plan.Plan{{ID: 1, Description: "Create widget", Done: true}},
	}
	h.tracker.CreateComment(context.Background(), "key-1", document.Render())

	summary, err := h.session(Options{Units: []string{"ENG-1"}}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Completed) != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(h.backend.Requests()) != 0 {
		t.Errorf("backend called %d times for a finished plan", len(h.backend.Requests()))
	}
}

func TestRun_SkipPlanUsesOrderedChildren(t *testing.T) {
	t.Parallel()

	unit := widgetUnit()
	unit.Children = []tracker.Child{
		{ID: "ENG-2", Title: "Wire handler", BlockedBy: []string{"ENG-3"}},
		{ID: "ENG-3", Title: "Add schema"},
	}
	h := newHarness(t, unit)
	if _, err := h.session(Options{Units: []string{"ENG-1"}, SkipPlan: true, SkipVerify: true}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.backend.Count(planningPrompt) != 0 {
		t.Error("SkipPlan should not call planning")
	}
	log := gitCommand(t, h.dir, "log", "--reverse", "--format=%s", "main..HEAD")
	lines := strings.Split(strings.TrimSpace(log), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "[ENG-3] step 1") || !strings.Contains(lines[1], "[ENG-2] step 2") {
		t.Errorf("commits = %q, want ENG-3 first then ENG-2", lines)
	}
}

func TestRun_NoPlanFailsUnit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	summary, err := h.session(Options{Units: []string{"ENG-1"}, SkipPlan: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Failed) != 1 || !errors.Is(summary.Err(), ErrUnitsFailed) {
		t.Errorf("summary = %+v, want ENG-1 failed", summary)
	}
}

func TestRun_FetchFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	summary, err := h.session(Options{Units: []string{"ENG-404", "ENG-1"}, SkipVerify: true}).Run(context.Background())
	if !errors.Is(err, tracker.ErrNotFound) {
		t.Fatalf("Run error = %v, want ErrNotFound", err)
	}
	if len(summary.Failed) != 1 || summary.Failed[0] != "ENG-404" {
		t.Errorf("Failed = %v", summary.Failed)
	}
	if h.backend.Count(workPrompt) != 0 {
		t.Error("later units should not run after a fatal error")
	}
}

func TestRun_RepositoryLocked(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	lock, err := runlock.AcquireRepo(h.dir)
	if err != nil {
		t.Fatalf("AcquireRepo: %v", err)
	}
	defer lock.Release()

	_, err = h.session(Options{Units: []string{"ENG-1"}}).Run(context.Background())
	if !errors.Is(err, runlock.ErrLocked) {
		t.Fatalf("Run error = %v, want ErrLocked", err)
	}
}

func TestRun_BackendFailureReleasesLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	s := h.session(Options{Units: []string{"ENG-1"}})
	s.config.Backend = func(string) (backend.Backend, error) {
		return nil, errors.New("claude not found")
	}
	if _, err := s.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "claude not found") {
		t.Fatalf("Run error = %v, want the backend failure", err)
	}
	lock, err := runlock.AcquireRepo(h.dir)
	if err != nil {
		t.Fatalf("run lock still held after a failed start: %v", err)
	}
	lock.Release()
}

func TestRun_Worktree(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	summary, err := h.session(Options{Units: []string{"ENG-1"}, Worktree: true, SkipVerify: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Completed) != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	entries, err := os.ReadDir(h.settings.Worktree.Root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("worktree root still has %d entries", len(entries))
	}
	if current := strings.TrimSpace(gitCommand(t, h.dir, "branch", "--show-current")); current != "main" {
		t.Errorf("origin checkout moved to %q", current)
	}
	commits := strings.TrimSpace(gitCommand(t, h.dir, "log", "--oneline", "main..eng-1-add-widget"))
	if got := len(strings.Split(commits, "\n")); got != 2 {
		t.Errorf("branch has %d commits, want 2:\n%s", got, commits)
	}
	if leftover := strings.TrimSpace(gitCommand(t, h.dir, "branch", "--list", "lisa-preflight-*")); leftover != "" {
		t.Errorf("preflight branch left behind: %q", leftover)
	}
}

func TestBranchName(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	s := h.session(Options{Units: []string{"ENG-1"}})
	work, err := s.workspace(h.dir)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	ctx := context.Background()

	name, current, err := s.branchName(ctx, work, widgetUnit())
	if err != nil {
		t.Fatalf("branchName: %v", err)
	}
	if name != "eng-1-add-widget" || current {
		t.Errorf("fresh unit = %q (current %v), want eng-1-add-widget", name, current)
	}

	gitCommand(t, h.dir, "branch", "eng-1-foo")
	gitCommand(t, h.dir, "branch", "eng-1-foo-2")
	gitCommand(t, h.dir, "branch", "eng-1-foo-5")
	name, _, err = s.branchName(ctx, work, widgetUnit())
	if err != nil {
		t.Fatalf("branchName: %v", err)
	}
	if name != "eng-1-foo-6" {
		t.Errorf("next branch = %q, want eng-1-foo-6", name)
	}

	gitCommand(t, h.dir, "checkout", "eng-1-foo-2")
	name, current, err = s.branchName(ctx, work, widgetUnit())
	if err != nil {
		t.Fatalf("branchName: %v", err)
	}
	if name != "eng-1-foo-2" || !current {
		t.Errorf("on unit branch = %q (current %v), want eng-1-foo-2 current", name, current)
	}
	if got := h.backend.Count(slugPrompt); got != 1 {
		t.Errorf("slug calls = %d, want 1", got)
	}
}

func TestCleanSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		max  int
		want string
	}{
		{"add-widget", 18, "add-widget"},
		{"  Add Widget! ", 18, "add-widget"},
		{"fix_the_parser", 18, "fix-the-parser"},
		{"a-very-long-slug-that-overflows", 10, "a-very-lon"},
		{"trailing-cut-", 13, "trailing-cut"},
		{"!!!", 18, "work"},
		{"", 18, "work"},
	}
	for _, test := range tests {
		if got := cleanSlug(test.raw, test.max); got != test.want {
			t.Errorf("cleanSlug(%q, %d) = %q, want %q", test.raw, test.max, got, test.want)
		}
	}
}

func TestPlanUnit_ReplanWithEditedDecisions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	h.editor.results = []func([]plan.Decision) decisionui.Result{
		func(decisions []plan.Decision) decisionui.Result {
			edited := append([]plan.Decision(nil), decisions...)
			edited[0].Selected = false
			return decisionui.Result{Decisions: edited, Action: decisionui.ActionReplan}
		},
		func(decisions []plan.Decision) decisionui.Result {
			return decisionui.Result{Decisions: decisions, Action: decisionui.ActionContinue}
		},
	}
	s := h.session(Options{Units: []string{"ENG-1"}, Interactive: true})
	work, err := s.workspace(h.dir)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}

	result, err := s.planUnit(context.Background(), work, widgetUnit(), s.logger)
	if err != nil {
		t.Fatalf("planUnit: %v", err)
	}
	if got := h.backend.Count(planningPrompt); got != 2 {
		t.Fatalf("planning calls = %d, want 2", got)
	}
	requests := h.backend.Requests()
	replan := requests[len(requests)-1].Prompt
	if !strings.Contains(replan, "Prior decisions") || !strings.Contains(replan, "- [ ] Use the standard library") {
		t.Errorf("replan prompt lacks the edited decisions:\n%s", replan)
	}
	if len(h.editor.seen) != 2 || h.editor.seen[0][0].ID != "P.1" {
		t.Errorf("editor saw %+v, want P.1 records twice", h.editor.seen)
	}
	if len(result.Steps) != 2 || len(result.Decisions) != 1 || result.Decisions[0].ID != "P.1" {
		t.Errorf("result = %+v", result)
	}
}

func TestPlanUnit_QuitIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	h.editor.results = []func([]plan.Decision) decisionui.Result{
		func([]plan.Decision) decisionui.Result { return decisionui.Result{Action: decisionui.ActionQuit} },
	}
	summary, err := h.session(Options{Units: []string{"ENG-1"}, Interactive: true}).Run(context.Background())
	if !errors.Is(err, workloop.ErrOperatorQuit) {
		t.Fatalf("Run error = %v, want ErrOperatorQuit", err)
	}
	if len(summary.Failed) != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestPlanUnit_UnparseableFallsBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	h.backend = backendtest.New(backendtest.Rule{Match: planningPrompt, Respond: backendtest.Text("I could not plan this")})
	s := h.session(Options{Units: []string{"ENG-1"}})
	work, err := s.workspace(h.dir)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	result, err := s.planUnit(context.Background(), work, widgetUnit(), s.logger)
	if err != nil {
		t.Fatalf("planUnit: %v", err)
	}
	if len(result.Steps) != 0 {
		t.Errorf("steps = %+v, want none", result.Steps)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	unit := widgetUnit()
	unit.Children = []tracker.Child{
		{ID: "ENG-2", Title: "Wire handler", BlockedBy: []string{"ENG-3"}},
		{ID: "ENG-3", Title: "Add schema"},
	}
	h := newHarness(t, unit)
	if err := h.session(Options{}).Status(context.Background(), StatusRequest{Unit: "ENG-1"}); err != nil {
		t.Fatalf("Status: %v", err)
	}
	shown := h.display.all()
	for _, want := range []string{
		"## ENG-1: Add widget",
		"| Progress | 0/2 steps done |",
		"| Next step | Add schema |",
		"- [ ] **1** (ENG-3): Add schema ← current",
		"- [ ] **2** (ENG-2): Wire handler",
	} {
		if !strings.Contains(shown, want) {
			t.Errorf("status missing %q:\n%s", want, shown)
		}
	}
	if branches := strings.TrimSpace(gitCommand(t, h.dir, "branch", "--list", "eng-1-*")); branches != "" {
		t.Errorf("Status created branches: %q", branches)
	}
	if len(h.backend.Requests()) != 0 {
		t.Error("Status should not call the backend")
	}
}

func TestStatus_ShowsRecoveredDocumentAndDiff(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	gitCommand(t, h.dir, "checkout", "-b", "eng-1-add-widget")
	if err := os.WriteFile(h.dir+"/widget.go", []byte("package widget\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	gitCommand(t, h.dir, "add", "widget.go")
	gitCommand(t, h.dir, "commit", "-m", "add widget")
	document := progress.Document{
		Branch:    "eng-1-add-widget",
		Iteration: 2,
		Steps:     plan.Plan{{ID: 1, Description: "Create widget", Done: true}, {ID: 2, Description: "Test widget"}},
	}
	h.tracker.CreateComment(context.Background(), "key-1", document.Render())

	err := h.session(Options{}).Status(context.Background(), StatusRequest{Unit: "ENG-1", ShowDiff: true})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	shown := h.display.all()
	if !strings.Contains(shown, "| Progress | 1/2 steps done |") || !strings.Contains(shown, "| Iterations | 2 |") {
		t.Errorf("status did not use the recovered document:\n%s", shown)
	}
	if len(h.display.diffs) != 1 || !strings.Contains(h.display.diffs[0], "+package widget") {
		t.Errorf("diffs = %q", h.display.diffs)
	}
}

func TestNewestBranch(t *testing.T) {
	t.Parallel()

	existing := []string{"eng-1-foo", "eng-1-foo-10", "eng-1-foo-9"}
	if got := newestBranch("main", existing, "ENG-1"); got != "eng-1-foo-10" {
		t.Errorf("newestBranch = %q, want eng-1-foo-10", got)
	}
	if got := newestBranch("eng-1-foo", existing, "ENG-1"); got != "eng-1-foo" {
		t.Errorf("newestBranch on unit branch = %q", got)
	}
	if got := newestBranch("main", nil, "ENG-1"); got != "" {
		t.Errorf("newestBranch with no branches = %q", got)
	}
}

func TestReviewOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	h.backend.On(reviewPrompt, backendtest.JSON(map[string]any{
		"approved": false,
		"summary":  "tests are missing",
		"findings": []map[string]any{{"severity": "major", "location": "widget.go", "description": "no tests"}},
	}))
	gitCommand(t, h.dir, "checkout", "-b", "eng-1-add-widget")

	report, err := h.session(Options{}).ReviewOnly(context.Background(), "ENG-1")
	if err != nil {
		t.Fatalf("ReviewOnly: %v", err)
	}
	if report.Approved {
		t.Error("report approved, want needs fixes")
	}
	shown := h.display.all()
	for _, want := range []string{"## Review: NEEDS_FIXES", "- [major] `widget.go` no tests", "**Summary:** tests are missing"} {
		if !strings.Contains(shown, want) {
			t.Errorf("report missing %q:\n%s", want, shown)
		}
	}
}

func TestConclude(t *testing.T) {
	t.Parallel()

	h := newHarness(t, widgetUnit())
	if _, err := h.session(Options{}).Conclude(context.Background(), "ENG-1"); !errors.Is(err, ErrNotOnUnitBranch) {
		t.Fatalf("Conclude on main error = %v, want ErrNotOnUnitBranch", err)
	}

	gitCommand(t, h.dir, "checkout", "-b", "eng-1-add-widget")
	document := progress.Document{Branch: "eng-1-add-widget", Steps: plan.Plan{{ID: 1, Description: "Create widget", Done: true}}}
	h.tracker.CreateComment(context.Background(), "key-1", document.Render())

	guide, err := h.session(Options{}).Conclude(context.Background(), "ENG-1")
	if err != nil {
		t.Fatalf("Conclude: %v", err)
	}
	if !strings.Contains(guide, "Read widget.go first.") {
		t.Errorf("guide = %q", guide)
	}
	bodies := h.tracker.bodies("key-1")
	if len(bodies) != 1 || !strings.Contains(bodies[0], "## Review Guide") {
		t.Errorf("guide not attached to the document:\n%s", bodies)
	}
}

func TestSummary_Err(t *testing.T) {
	t.Parallel()

	if err := (Summary{Completed: []string{"A"}}).Err(); err != nil {
		t.Errorf("all completed: %v", err)
	}
	partial := Summary{Completed: []string{"A"}, Failed: []string{"B"}}.Err()
	if !errors.Is(partial, ErrUnitsFailed) || !strings.Contains(partial.Error(), "completed 1/2") {
		t.Errorf("partial = %v", partial)
	}
	total := Summary{Failed: []string{"A", "B"}}.Err()
	if !errors.Is(total, ErrUnitsFailed) || !strings.Contains(total.Error(), "all 2 failed") {
		t.Errorf("total = %v", total)
	}
}
