// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/lisa/lib/plan"
)

var lastRun = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleDocument() Document {
	return Document{
		Branch:      "eng-100-retry-queue",
		Iteration:   4,
		CurrentStep: 2,
		Steps: plan.Plan{
			{ID: 1, Description: "Add schema", Done: true},
			{
				ID:          2,
				Description: "Wire handler",
				Unit:        "ENG-101",
				Files: []plan.FileOp{
					{Operation: plan.OperationModify, Path: "lib/api/handler.go", Template: "lib/api/users.go", Detail: "add retry"},
					{Operation: plan.OperationCreate, Path: "lib/api/retry.go"},
				},
			},
			{ID: 3, Description: "Write docs", Unit: "ENG-102"},
		},
		Decisions: []plan.Decision{
			{ID: "2.1", Selected: false, Statement: "MANUAL: rotate key", Rationale: plan.BlockedRationale},
			{ID: "P.1", Selected: true, Statement: "Reuse the queue", Rationale: "already durable"},
			{ID: "P.2", Selected: true, Statement: "No new dependency"},
		},
		Exploration: plan.Exploration{
			Patterns:   []string{"handlers return typed errors", "tests use fakes"},
			Modules:    []string{"lib/api", "lib/queue"},
			References: []plan.Reference{{File: "lib/api/users.go", Relevance: "same shape"}},
		},
		Log:     []string{"09:30 Iter 4 - step 1 ✓ (approved)", "09:10 Iter 3 - step 1 in progress"},
		LastRun: lastRun,
	}
}

func TestRender_Layout(t *testing.T) {
	t.Parallel()

	body := sampleDocument().Render()
	wantLines := []string{
		"🤖 **lisa** · `eng-100-retry-queue`",
		"## Exploration",
		"**Patterns:** handlers return typed errors | tests use fakes",
		"**Modules:** lib/api, lib/queue",
		"**Templates:** users.go (same shape)",
		"## Plan",
		"- [x] **1**: Add schema",
		"- [ ] **2** (ENG-101): Wire handler ← current",
		"  - `modify`: lib/api/handler.go",
		"    template: lib/api/users.go",
		"    detail: add retry",
		"  - `create`: lib/api/retry.go",
		"## Assumptions",
		"✅ P.1. Reuse the queue",
		"   *already durable*",
		"❌ 2.1. MANUAL: rotate key",
		"| Field | Value |",
		"|-------|-------|",
		"| Iterations | 4 |",
		"| Current step | 2 |",
		"| Last run | 2026-03-14 09:30 UTC |",
		"**Log:**",
		"- 09:30 Iter 4 - step 1 ✓ (approved)",
	}
	lines := strings.Split(body, "\n")
	for _, want := range wantLines {
		found := false
		for _, line := range lines {
			if line == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("rendered body missing line %q:\n%s", want, body)
		}
	}

	// Planning decisions come first regardless of input order.
	if strings.Index(body, "P.1.") > strings.Index(body, "2.1.") {
		t.Error("planning decisions should render before work decisions")
	}
	if !strings.HasPrefix(body, Header("eng-100-retry-queue")+"\n\n## Exploration") {
		t.Errorf("body does not start with header then exploration:\n%s", body)
	}
}

func TestRender_NoCurrentStep(t *testing.T) {
	t.Parallel()

	document := Document{Branch: "b", Iteration: 1, Steps: plan.Plan{{ID: 1, Description: "x", Done: true}}}
	body := document.Render()
	if !strings.Contains(body, "| Current step | - |") {
		t.Errorf("expected '-' for no current step:\n%s", body)
	}
	if strings.Contains(body, "## Exploration") || strings.Contains(body, "## Assumptions") {
		t.Errorf("empty sections should be omitted:\n%s", body)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	original := sampleDocument()
	parsed, ok := Parse(original.Render())
	if !ok {
		t.Fatal("Parse did not recognize the header")
	}

	if parsed.Branch != original.Branch {
		t.Errorf("Branch = %q, want %q", parsed.Branch, original.Branch)
	}
	if parsed.Iteration != 4 {
		t.Errorf("Iteration = %d, want 4", parsed.Iteration)
	}
	if parsed.CurrentStep != 2 {
		t.Errorf("CurrentStep = %d, want 2", parsed.CurrentStep)
	}
	if !reflect.DeepEqual(parsed.Steps, original.Steps) {
		t.Errorf("Steps = %+v\nwant %+v", parsed.Steps, original.Steps)
	}
	if !parsed.LastRun.Equal(lastRun) {
		t.Errorf("LastRun = %v, want %v", parsed.LastRun, lastRun)
	}
	if !reflect.DeepEqual(parsed.Log, original.Log) {
		t.Errorf("Log = %v, want %v", parsed.Log, original.Log)
	}
	if !reflect.DeepEqual(parsed.Exploration.Patterns, original.Exploration.Patterns) ||
		!reflect.DeepEqual(parsed.Exploration.Modules, original.Exploration.Modules) {
		t.Errorf("Exploration = %+v", parsed.Exploration)
	}
	if len(parsed.Exploration.References) != 1 || parsed.Exploration.References[0].File != "users.go" {
		t.Errorf("References = %+v", parsed.Exploration.References)
	}

	byID := map[string]plan.Decision{}
	for _, decision := range parsed.Decisions {
		byID[decision.ID] = decision
	}
	for _, want := range original.Decisions {
		if got := byID[want.ID]; got != want {
			t.Errorf("decision %s = %+v, want %+v", want.ID, got, want)
		}
	}
}

func TestParse_ThreeStepPlan(t *testing.T) {
	t.Parallel()

	document := Document{
		Branch:      "eng-7-x",
		Iteration:   2,
		CurrentStep: 2,
		Steps: plan.Plan{
			{ID: 1, Description: "One", Done: true},
			{ID: 2, Description: "Two", Unit: "ENG-8"},
			{ID: 3, Description: "Three"},
		},
	}
	parsed, _ := Parse(document.Render())
	if !reflect.DeepEqual(parsed.Steps, document.Steps) {
		t.Errorf("Steps = %+v, want %+v", parsed.Steps, document.Steps)
	}
	if parsed.CurrentStep != 2 {
		t.Errorf("CurrentStep = %d, want 2", parsed.CurrentStep)
	}
}

func TestParse_IterationsRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want int
	}{
		{"| Iterations | 12 |", 12},
		{"|  Iterations  |  3  |", 3},
		{"| Iterations | x |", 0},
	}
	for _, test := range tests {
		parsed, _ := Parse(Header("b") + "\n\n" + test.line + "\n")
		if parsed.Iteration != test.want {
			t.Errorf("Parse(%q).Iteration = %d, want %d", test.line, parsed.Iteration, test.want)
		}
	}
}

func TestParse_LegacyHeader(t *testing.T) {
	t.Parallel()

	body := "🤖 **tralph** · `eng-1-old`\n\n## Plan\n- [ ] **1**: Only step ← current\n"
	parsed, ok := Parse(body)
	if !ok {
		t.Fatal("legacy header not recognized")
	}
	if parsed.Branch != "eng-1-old" || len(parsed.Steps) != 1 || parsed.CurrentStep != 1 {
		t.Errorf("parsed = %+v", parsed)
	}

	if _, ok := Parse("Just a comment"); ok {
		t.Error("an arbitrary comment should not be recognized")
	}
}

func TestParse_RationaleMustFollowDecision(t *testing.T) {
	t.Parallel()

	body := strings.Join([]string{
		Header("b"),
		"",
		"## Assumptions",
		"✅ P.1. First",
		"",
		"   *stray rationale*",
		"❌ 1.1. Second",
		"   *belongs to second*",
		"",
		"**Log:**",
		"- 10:00 entry",
	}, "\n")
	parsed, _ := Parse(body)
	if len(parsed.Decisions) != 2 {
		t.Fatalf("Decisions = %+v", parsed.Decisions)
	}
	if parsed.Decisions[0].Rationale != "" {
		t.Errorf("first rationale = %q, want empty", parsed.Decisions[0].Rationale)
	}
	if parsed.Decisions[1].Rationale != "belongs to second" {
		t.Errorf("second rationale = %q", parsed.Decisions[1].Rationale)
	}
	if !reflect.DeepEqual(parsed.Log, []string{"10:00 entry"}) {
		t.Errorf("Log = %v", parsed.Log)
	}
}

func TestParse_IgnoresUnknownLines(t *testing.T) {
	t.Parallel()

	body := Header("b") + "\n\nSomeone edited this by hand.\n## Plan\n- [x] **1**: Done\nnot a step\n- [ ] **two**: bad id\n"
	parsed, _ := Parse(body)
	if len(parsed.Steps) != 1 || !parsed.Steps[0].Done {
		t.Errorf("Steps = %+v", parsed.Steps)
	}
}

func TestDocument_AddLog(t *testing.T) {
	t.Parallel()

	var document Document
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	for index := 0; index < MaxLogEntries+3; index++ {
		document.AddLog("entry", start.Add(time.Duration(index)*time.Minute))
	}
	if len(document.Log) != MaxLogEntries {
		t.Fatalf("Log has %d entries, want %d", len(document.Log), MaxLogEntries)
	}
	if document.Log[0] != "08:12 entry" {
		t.Errorf("newest entry = %q, want 08:12 entry", document.Log[0])
	}
}

func TestReviewGuide_RoundTrip(t *testing.T) {
	t.Parallel()

	guide := ReviewGuide{
		Purpose:         "Retry failed deliveries",
		EntryPoint:      "lib/queue/retry.go:Run",
		Flow:            "1. Dequeue\n2. Retry",
		ErrorHandling:   []ErrorPath{{Location: "retry.go:40", Description: "backs off"}},
		KeyReviewPoints: []ReviewPoint{{Location: "retry.go:60", WhatItDoes: "caps attempts", Risk: "off by one"}},
		Tests:           &TestCoverage{Covered: []string{"backoff"}, Missing: []string{"jitter"}},
		SubtaskMapping:  []SubtaskAnswer{{Ticket: "ENG-101", Implementation: "retry.go"}},
	}
	markdown := guide.Markdown()
	for _, want := range []string{
		"## Review Guide",
		"**Purpose:** Retry failed deliveries",
		"**Entry Point:** `lib/queue/retry.go:Run`",
		"### Flow",
		"1. `retry.go:40`: backs off",
		"1. **retry.go:60**",
		"   - ⚠️ Risk: off by one",
		"- [x] backoff",
		"- [ ] jitter",
		"- **ENG-101**: retry.go",
	} {
		if !strings.Contains(markdown, want) {
			t.Errorf("guide missing %q:\n%s", want, markdown)
		}
	}

	document := sampleDocument()
	document.ReviewGuide = markdown
	parsed, _ := Parse(document.Render())
	if parsed.ReviewGuide != strings.TrimSpace(markdown) {
		t.Errorf("ReviewGuide = %q\nwant %q", parsed.ReviewGuide, strings.TrimSpace(markdown))
	}
	if len(parsed.Log) != 2 {
		t.Errorf("log should stop before the guide, got %v", parsed.Log)
	}
}

func TestWithReviewGuide(t *testing.T) {
	t.Parallel()

	body := Header("b") + "\n\n**Log:**\n- 10:00 entry\n"
	first := WithReviewGuide(body, "## Review Guide\n**Purpose:** one\n")
	second := WithReviewGuide(first, "## Review Guide\n**Purpose:** two\n")

	if strings.Count(second, reviewGuideHeading) != 1 {
		t.Errorf("expected exactly one guide:\n%s", second)
	}
	if !strings.Contains(second, "**Purpose:** two") || strings.Contains(second, "**Purpose:** one") {
		t.Errorf("guide not replaced:\n%s", second)
	}
	if !strings.Contains(second, "- 10:00 entry\n\n## Review Guide") {
		t.Errorf("guide not separated from the log by one blank line:\n%q", second)
	}
}
