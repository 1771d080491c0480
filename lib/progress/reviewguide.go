// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"fmt"
	"strings"
)

// ReviewGuide is the structured walkthrough a reviewer reads before
// the diff. Field names follow the conclusion output schema.
type ReviewGuide struct {
	Purpose         string          `json:"purpose"`
	EntryPoint      string          `json:"entry_point,omitempty"`
	Flow            string          `json:"flow"`
	ErrorHandling   []ErrorPath     `json:"error_handling,omitempty"`
	KeyReviewPoints []ReviewPoint   `json:"key_review_points,omitempty"`
	Tests           *TestCoverage   `json:"tests,omitempty"`
	SubtaskMapping  []SubtaskAnswer `json:"subtask_mapping,omitempty"`
}

// ErrorPath is a place where the change handles a failure.
type ErrorPath struct {
	Location    string `json:"location"`
	Description string `json:"description"`
}

// ReviewPoint is a location that deserves reviewer attention.
type ReviewPoint struct {
	Location   string `json:"location"`
	WhatItDoes string `json:"what_it_does"`
	Risk       string `json:"risk"`
}

// TestCoverage lists behaviours with and without tests.
type TestCoverage struct {
	Covered []string `json:"covered,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// SubtaskAnswer maps a child unit to where it was implemented.
type SubtaskAnswer struct {
	Ticket         string `json:"ticket"`
	Implementation string `json:"implementation"`
}

// Markdown renders the guide as a document section, heading included.
func (guide ReviewGuide) Markdown() string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("%s", reviewGuideHeading)
	add("**Purpose:** %s", orNA(guide.Purpose))
	add("")
	if guide.EntryPoint != "" {
		add("**Entry Point:** `%s`", guide.EntryPoint)
		add("")
	}
	add("### Flow")
	add("%s", orNA(guide.Flow))
	add("")
	if len(guide.ErrorHandling) > 0 {
		add("### Error Handling")
		for index, path := range guide.ErrorHandling {
			add("%d. `%s`: %s", index+1, path.Location, path.Description)
		}
		add("")
	}
	if len(guide.KeyReviewPoints) > 0 {
		add("### Key Review Points")
		for index, point := range guide.KeyReviewPoints {
			add("%d. **%s**", index+1, orUnknown(point.Location))
			add("   - %s", orUnknown(point.WhatItDoes))
			add("   - ⚠️ Risk: %s", orUnknown(point.Risk))
		}
		add("")
	}
	if guide.Tests != nil && (len(guide.Tests.Covered) > 0 || len(guide.Tests.Missing) > 0) {
		add("### Test Coverage")
		for _, test := range guide.Tests.Covered {
			add("- [x] %s", test)
		}
		for _, test := range guide.Tests.Missing {
			add("- [ ] %s", test)
		}
		add("")
	}
	if len(guide.SubtaskMapping) > 0 {
		add("### Subtasks")
		for _, subtask := range guide.SubtaskMapping {
			add("- **%s**: %s", orUnknown(subtask.Ticket), orUnknown(subtask.Implementation))
		}
		add("")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}

// FallbackGuide is used when the conclusion output cannot be decoded.
func FallbackGuide(raw string) ReviewGuide {
	return ReviewGuide{
		Purpose:    "Parse error",
		EntryPoint: "?",
		Flow:       cut(raw, 500),
	}
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}

func orUnknown(value string) string {
	if value == "" {
		return "?"
	}
	return value
}
