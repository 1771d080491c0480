// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/lisa/lib/plan"
)

// trailerPrefixes are the commit trailer namespaces, canonical first.
var trailerPrefixes = []string{"Lisa-", "Tralph-"}

// HistoryGrep matches loop commits in either namespace. Extended
// regular expression syntax.
const HistoryGrep = "(Lisa|Tralph)-Iteration:"

const (
	trailerValueLimit = 500
	statementLimit    = 50

	// maxHistory is how many iteration records ReadHistory keeps.
	maxHistory = 3
)

// noneValue marks an absent failure signal in a trailer.
const noneValue = "none"

// NoVerifyMarker is appended to the title of a commit made with hooks
// bypassed.
const NoVerifyMarker = " [no verify]"

// Trailers is the per-iteration record written on a loop commit.
type Trailers struct {
	Iteration    int
	TestErrors   []string
	ReviewIssues []string
	Files        []string
	Fixes        int
}

// Commit describes a loop commit message.
type Commit struct {
	// Unit is the identifier shown in the title.
	Unit  string
	Title string
	Body  string

	// Trailers is nil for commits outside an iteration.
	Trailers *Trailers

	// Decisions made since the previous commit; selected ones are
	// recorded.
	Decisions []plan.Decision
}

// Message renders the commit message: a conventional title, the body,
// and trailers.
func (commit Commit) Message() string {
	canonical := trailerPrefixes[0]
	var builder strings.Builder
	fmt.Fprintf(&builder, "feat(lisa): [%s] %s", commit.Unit, commit.Title)
	if commit.Body != "" {
		builder.WriteString("\n\n" + commit.Body)
	}

	var trailers []string
	if t := commit.Trailers; t != nil {
		status := "PASS"
		testError := noneValue
		if len(t.TestErrors) > 0 {
			status = "FAIL"
			testError = t.TestErrors[0]
		}
		reviewIssues := noneValue
		if len(t.ReviewIssues) > 0 {
			reviewIssues = strings.Join(t.ReviewIssues, "; ")
		}
		trailers = append(trailers,
			canonical+"Iteration: "+strconv.Itoa(t.Iteration),
			canonical+"Status: "+status,
			canonical+"Test-Error: "+sanitize(testError),
			canonical+"Review-Issues: "+sanitize(reviewIssues),
		)
		if len(t.Files) > 0 {
			trailers = append(trailers, canonical+"Files: "+sanitize(strings.Join(t.Files, ", ")))
		}
		if t.Fixes > 0 {
			trailers = append(trailers, canonical+"Fixes: "+strconv.Itoa(t.Fixes))
		}
	}
	var statements []string
	for _, decision := range plan.Selected(commit.Decisions) {
		statements = append(statements, cut(decision.Statement, statementLimit))
	}
	if len(statements) > 0 {
		trailers = append(trailers, canonical+"Assumptions: "+sanitize(strings.Join(statements, "; ")))
	}
	if len(trailers) > 0 {
		builder.WriteString("\n\n" + strings.Join(trailers, "\n"))
	}
	return builder.String()
}

// MarkNoVerify appends NoVerifyMarker to the first line of message.
func MarkNoVerify(message string) string {
	title, rest, found := strings.Cut(message, "\n")
	if !found {
		return title + NoVerifyMarker
	}
	return title + NoVerifyMarker + "\n" + rest
}

// sanitize flattens a trailer value to one line and bounds its length.
func sanitize(value string) string {
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", " ")
	return cut(value, trailerValueLimit)
}

// IterationRecord is what one loop commit recorded.
type IterationRecord struct {
	Iteration int
	Status    string
	Files     []string
	Fixes     string
	Errors    string
}

// History is the trailer record of a branch.
type History struct {
	// Iterations holds at most three records, newest first.
	Iterations []IterationRecord

	// LastTestError and LastReviewIssues come from the newest commit
	// only; older signals were already addressed.
	LastTestError    string
	LastReviewIssues string
}

// NewestIteration returns the iteration of the newest record, or 0.
func (history History) NewestIteration() int {
	if len(history.Iterations) == 0 {
		return 0
	}
	return history.Iterations[0].Iteration
}

// Context renders the records as a prompt section.
func (history History) Context() string {
	var lines []string
	for _, record := range history.Iterations {
		line := fmt.Sprintf("- Iteration %d", record.Iteration)
		if record.Status != "" {
			line += ": " + record.Status
		}
		if len(record.Files) > 0 {
			line += " (files: " + strings.Join(record.Files, ", ") + ")"
		}
		if record.Fixes != "" {
			line += ", fixes: " + record.Fixes
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ParseHistory reads trailers from commit messages ordered newest
// first.
func ParseHistory(messages []string) History {
	var history History
	for index, message := range messages {
		newest := index == 0
		var record IterationRecord
		seen := false
		for _, line := range strings.Split(message, "\n") {
			key, value, ok := trailer(line)
			if !ok {
				continue
			}
			switch key {
			case "Iteration":
				if iteration, err := strconv.Atoi(value); err == nil {
					record.Iteration = iteration
					seen = true
				}
			case "Status":
				record.Status = value
				seen = true
			case "Files":
				record.Files = splitNonEmpty(value, ",")
				seen = true
			case "Fixes":
				record.Fixes = value
				seen = true
			case "Errors":
				record.Errors = value
				seen = true
			case "Test-Error":
				if newest && value != noneValue {
					history.LastTestError = value
				}
			case "Review-Issues":
				if newest && value != noneValue {
					history.LastReviewIssues = value
				}
			}
		}
		if seen {
			history.Iterations = append(history.Iterations, record)
		}
	}
	if len(history.Iterations) > maxHistory {
		history.Iterations = history.Iterations[:maxHistory]
	}
	return history
}

// trailer splits "Lisa-Key: value" in any recognized namespace.
func trailer(line string) (key, value string, ok bool) {
	for _, prefix := range trailerPrefixes {
		rest, found := strings.CutPrefix(line, prefix)
		if !found {
			continue
		}
		key, value, found = strings.Cut(rest, ":")
		if !found {
			return "", "", false
		}
		return key, strings.TrimSpace(value), true
	}
	return "", "", false
}

// LogReader returns commit messages matching grep in a revision range,
// newest first.
type LogReader interface {
	LogMessages(ctx context.Context, grep, revisionRange string) ([]string, error)
}

// ReadHistory reads the trailer history of commits on branch that are
// not on base.
func ReadHistory(ctx context.Context, reader LogReader, base, branch string) (History, error) {
	messages, err := reader.LogMessages(ctx, HistoryGrep, base+".."+branch)
	if err != nil {
		return History{}, fmt.Errorf("progress: reading commit history: %w", err)
	}
	return ParseHistory(messages), nil
}
