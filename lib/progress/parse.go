// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/lisa/lib/plan"
)

var (
	headerPattern   = regexp.MustCompile("^🤖 \\*\\*(" + strings.Join(headerNames, "|") + ")\\*\\* · `([^`]+)`")
	stepPattern     = regexp.MustCompile(`^- \[([ x])\] \*\*(\d+)\*\*(?: \(([^)]+)\))?: (.+?)(?:\s*←\s*current)?$`)
	fileOpPattern   = regexp.MustCompile("^- `([a-z]+)`: (.+)$")
	decisionPattern = regexp.MustCompile(`^([✅❌]) ([A-Z]\.\d+|\d+(?:\.\d+)?)\. (.+)`)
	iterationsRow   = regexp.MustCompile(`^\|\s*Iterations\s*\|\s*(\d+)\s*\|`)
	currentStepRow  = regexp.MustCompile(`^\|\s*Current step\s*\|\s*([^|]*?)\s*\|`)
	lastRunRow      = regexp.MustCompile(`^\|\s*Last run\s*\|\s*([^|]*?)\s*\|`)
	templatePattern = regexp.MustCompile(`([^,(]+?)(?: \(([^)]*)\))?(?:,\s*|$)`)
)

// reviewGuideHeading opens the review guide section.
const reviewGuideHeading = "## Review Guide"

type section int

const (
	sectionNone section = iota
	sectionExploration
	sectionPlan
	sectionAssumptions
	sectionLog
)

// Parse reads a document body. The boolean is false when the first line
// is not a recognized header; the body is parsed regardless. Lines
// that match nothing are skipped.
func Parse(body string) (Document, bool) {
	var document Document
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")

	recognized := false
	if len(lines) > 0 {
		if match := headerPattern.FindStringSubmatch(strings.TrimSpace(lines[0])); match != nil {
			recognized = true
			document.Branch = match[2]
		}
	}

	current := sectionNone
	var lastDecision *plan.Decision
	for index := 0; index < len(lines); index++ {
		raw := lines[index]
		line := strings.TrimSpace(raw)

		if line == reviewGuideHeading {
			document.ReviewGuide = strings.TrimSpace(strings.Join(lines[index:], "\n"))
			break
		}

		switch {
		case line == "## Exploration":
			current = sectionExploration
			continue
		case line == "## Plan":
			current = sectionPlan
			continue
		case line == "## Assumptions":
			current = sectionAssumptions
			continue
		case line == "**Log:**":
			current = sectionLog
			continue
		case strings.HasPrefix(line, "| "):
			parseRow(&document, line)
			current = sectionNone
			continue
		}

		switch current {
		case sectionExploration:
			parseExplorationLine(&document.Exploration, line)
		case sectionPlan:
			parsePlanLine(&document, line)
		case sectionAssumptions:
			if match := decisionPattern.FindStringSubmatch(line); match != nil {
				document.Decisions = append(document.Decisions, plan.Decision{
					ID:        match[2],
					Selected:  match[1] == "✅",
					Statement: strings.TrimSpace(match[3]),
				})
				lastDecision = &document.Decisions[len(document.Decisions)-1]
				continue
			}
			if lastDecision != nil && isRationale(line) {
				lastDecision.Rationale = line[1 : len(line)-1]
			}
		case sectionLog:
			if line == "" || strings.HasPrefix(line, "#") {
				current = sectionNone
				continue
			}
			if entry, ok := strings.CutPrefix(line, "- "); ok {
				document.Log = append(document.Log, entry)
			}
		}
		// A rationale must directly follow its decision line.
		lastDecision = nil
	}
	return document, recognized
}

func isRationale(line string) bool {
	return len(line) > 2 && strings.HasPrefix(line, "*") && strings.HasSuffix(line, "*") && !strings.HasPrefix(line, "**")
}

func parseRow(document *Document, line string) {
	if match := iterationsRow.FindStringSubmatch(line); match != nil {
		document.Iteration, _ = strconv.Atoi(match[1])
		return
	}
	if match := currentStepRow.FindStringSubmatch(line); match != nil {
		if step, err := strconv.Atoi(match[1]); err == nil {
			document.CurrentStep = step
		}
		return
	}
	if match := lastRunRow.FindStringSubmatch(line); match != nil {
		if at, err := time.Parse(LastRunLayout, match[1]); err == nil {
			document.LastRun = at
		}
	}
}

func parsePlanLine(document *Document, line string) {
	if match := stepPattern.FindStringSubmatch(line); match != nil {
		id, err := strconv.Atoi(match[2])
		if err != nil {
			return
		}
		document.Steps = append(document.Steps, plan.Step{
			ID:          id,
			Done:        match[1] == "x",
			Unit:        match[3],
			Description: strings.TrimSpace(match[4]),
		})
		if strings.HasSuffix(line, "← current") && document.CurrentStep == 0 {
			document.CurrentStep = id
		}
		return
	}
	if len(document.Steps) == 0 {
		return
	}
	step := &document.Steps[len(document.Steps)-1]
	if match := fileOpPattern.FindStringSubmatch(line); match != nil {
		step.Files = append(step.Files, plan.FileOp{
			Operation: plan.Operation(match[1]),
			Path:      strings.TrimSpace(match[2]),
		})
		return
	}
	if len(step.Files) == 0 {
		return
	}
	op := &step.Files[len(step.Files)-1]
	if value, ok := strings.CutPrefix(line, "template: "); ok {
		op.Template = value
	} else if value, ok := strings.CutPrefix(line, "detail: "); ok {
		op.Detail = value
	}
}

func parseExplorationLine(exploration *plan.Exploration, line string) {
	if value, ok := strings.CutPrefix(line, "**Patterns:** "); ok {
		exploration.Patterns = splitNonEmpty(value, " | ")
		return
	}
	if value, ok := strings.CutPrefix(line, "**Modules:** "); ok {
		exploration.Modules = splitNonEmpty(value, ", ")
		return
	}
	if value, ok := strings.CutPrefix(line, "**Templates:** "); ok {
		for _, match := range templatePattern.FindAllStringSubmatch(value, -1) {
			file := strings.TrimSpace(match[1])
			if file == "" {
				continue
			}
			exploration.References = append(exploration.References, plan.Reference{File: file, Relevance: match[2]})
		}
	}
}

func splitNonEmpty(value, separator string) []string {
	var parts []string
	for _, part := range strings.Split(value, separator) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
