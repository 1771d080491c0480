// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/lisa/lib/plan"
)

// headerNames are the tool names a document header may carry. The
// first is written; all are recognized.
var headerNames = []string{"lisa", "tralph"}

// MaxLogEntries bounds the rolling log.
const MaxLogEntries = 10

// LastRunLayout formats the "Last run" row.
const LastRunLayout = "2006-01-02 15:04 MST"

// logTimeLayout prefixes each log entry.
const logTimeLayout = "15:04"

// Header returns the first line of a new document for branch.
func Header(branch string) string {
	return headerFor(headerNames[0], branch)
}

// Headers returns every recognized first line for branch, canonical
// first.
func Headers(branch string) []string {
	headers := make([]string, len(headerNames))
	for index, name := range headerNames {
		headers[index] = headerFor(name, branch)
	}
	return headers
}

func headerFor(name, branch string) string {
	return fmt.Sprintf("🤖 **%s** · `%s`", name, branch)
}

// Document is the progress document for one branch.
type Document struct {
	Branch    string
	Iteration int

	// CurrentStep is the step the next iteration will work on; 0 when
	// every step is done.
	CurrentStep int

	Steps       plan.Plan
	Decisions   []plan.Decision
	Exploration plan.Exploration

	// Log holds entries newest first.
	Log []string

	LastRun time.Time

	// ReviewGuide is the rendered review guide markdown, starting with
	// its "## Review Guide" heading, or empty.
	ReviewGuide string
}

// AddLog prepends an entry stamped with at, keeping at most
// MaxLogEntries.
func (document *Document) AddLog(entry string, at time.Time) {
	stamped := at.Format(logTimeLayout) + " " + entry
	document.Log = append([]string{stamped}, document.Log...)
	if len(document.Log) > MaxLogEntries {
		document.Log = document.Log[:MaxLogEntries]
	}
}

// Render produces the markdown body.
func (document Document) Render() string {
	var builder strings.Builder
	builder.WriteString(Header(document.Branch))
	builder.WriteString("\n\n")

	renderExploration(&builder, document.Exploration)

	if len(document.Steps) > 0 {
		builder.WriteString("## Plan\n")
		for _, step := range document.Steps {
			box := " "
			if step.Done {
				box = "x"
			}
			fmt.Fprintf(&builder, "- [%s] **%d**", box, step.ID)
			if step.Unit != "" {
				fmt.Fprintf(&builder, " (%s)", step.Unit)
			}
			fmt.Fprintf(&builder, ": %s", step.Description)
			if step.ID == document.CurrentStep {
				builder.WriteString(" ← current")
			}
			builder.WriteByte('\n')
			for _, op := range step.Files {
				fmt.Fprintf(&builder, "  - `%s`: %s\n", op.Operation, op.Path)
				if op.Template != "" {
					fmt.Fprintf(&builder, "    template: %s\n", op.Template)
				}
				if op.Detail != "" {
					fmt.Fprintf(&builder, "    detail: %s\n", op.Detail)
				}
			}
		}
		builder.WriteByte('\n')
	}

	if len(document.Decisions) > 0 {
		builder.WriteString("## Assumptions\n")
		var planning, work []plan.Decision
		for _, decision := range document.Decisions {
			if decision.IsPlanning() {
				planning = append(planning, decision)
			} else {
				work = append(work, decision)
			}
		}
		for _, decision := range append(planning, work...) {
			mark := "❌"
			if decision.Selected {
				mark = "✅"
			}
			fmt.Fprintf(&builder, "%s %s. %s\n", mark, decision.ID, decision.Statement)
			if decision.Rationale != "" {
				fmt.Fprintf(&builder, "   *%s*\n", decision.Rationale)
			}
		}
		builder.WriteByte('\n')
	}

	currentStep := "-"
	if document.CurrentStep > 0 {
		currentStep = strconv.Itoa(document.CurrentStep)
	}
	lastRun := "-"
	if !document.LastRun.IsZero() {
		lastRun = document.LastRun.Format(LastRunLayout)
	}
	builder.WriteString("| Field | Value |\n")
	builder.WriteString("|-------|-------|\n")
	fmt.Fprintf(&builder, "| Iterations | %d |\n", document.Iteration)
	fmt.Fprintf(&builder, "| Current step | %s |\n", currentStep)
	fmt.Fprintf(&builder, "| Last run | %s |\n", lastRun)
	builder.WriteString("\n**Log:**\n")
	for index, entry := range document.Log {
		if index == MaxLogEntries {
			break
		}
		fmt.Fprintf(&builder, "- %s\n", entry)
	}

	body := builder.String()
	if document.ReviewGuide != "" {
		body = strings.TrimRight(body, "\n") + "\n\n" + strings.TrimSpace(document.ReviewGuide) + "\n"
	}
	return body
}

func renderExploration(builder *strings.Builder, exploration plan.Exploration) {
	var lines []string
	if len(exploration.Patterns) > 0 {
		lines = append(lines, "**Patterns:** "+strings.Join(firstN(exploration.Patterns, 5), " | "))
	}
	if len(exploration.Modules) > 0 {
		lines = append(lines, "**Modules:** "+strings.Join(firstN(exploration.Modules, 5), ", "))
	}
	var templates []string
	for index, reference := range exploration.References {
		if index == 3 {
			break
		}
		name := path.Base(reference.File)
		if reference.File == "" {
			continue
		}
		if reference.Relevance != "" {
			name += " (" + cut(reference.Relevance, 30) + ")"
		}
		templates = append(templates, name)
	}
	if len(templates) > 0 {
		lines = append(lines, "**Templates:** "+strings.Join(templates, ", "))
	}
	if len(lines) == 0 {
		return
	}
	builder.WriteString("## Exploration\n")
	builder.WriteString(strings.Join(lines, "\n"))
	builder.WriteString("\n\n")
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

// cut truncates s to at most limit runes.
func cut(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
