// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"fmt"
	"strings"
)

// Operation is the kind of change a step intends to make to a file.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationModify Operation = "modify"
	OperationDelete Operation = "delete"
)

// FileOp is a planned change to one file. Template names an existing
// file to imitate and Detail narrows what the change should do; both
// are optional.
type FileOp struct {
	Operation Operation `json:"op"`
	Path      string    `json:"path"`
	Template  string    `json:"template,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// String renders the op as a single prompt line:
//
//	- modify: lib/foo.go (template: lib/bar.go, detail: add retries)
func (op FileOp) String() string {
	var line strings.Builder
	fmt.Fprintf(&line, "- %s: %s", op.Operation, op.Path)
	var extras []string
	if op.Template != "" {
		extras = append(extras, "template: "+op.Template)
	}
	if op.Detail != "" {
		extras = append(extras, "detail: "+op.Detail)
	}
	if len(extras) > 0 {
		line.WriteString(" (" + strings.Join(extras, ", ") + ")")
	}
	return line.String()
}

// Step is one unit of work in a plan. IDs start at 1 and are unique
// within a plan. Unit optionally names the child unit the step
// implements; commits for the step are attributed to it.
type Step struct {
	ID          int      `json:"id"`
	Description string   `json:"description"`
	Unit        string   `json:"ticket,omitempty"`
	Done        bool     `json:"done,omitempty"`
	Files       []FileOp `json:"files,omitempty"`
}

// Plan is an ordered list of steps. Steps are appended and marked
// done; they are never removed.
type Plan []Step

// FirstIncomplete returns the first step that is not done, or false
// when every step is done.
func (p Plan) FirstIncomplete() (Step, bool) {
	for _, step := range p {
		if !step.Done {
			return step, true
		}
	}
	return Step{}, false
}

// Find returns the step with the given ID.
func (p Plan) Find(id int) (Step, bool) {
	for _, step := range p {
		if step.ID == id {
			return step, true
		}
	}
	return Step{}, false
}

// MarkDone sets the done flag on the step with the given ID. Returns
// false if no such step exists.
func (p Plan) MarkDone(id int) bool {
	for index := range p {
		if p[index].ID == id {
			p[index].Done = true
			return true
		}
	}
	return false
}

// Remaining counts steps that are not done.
func (p Plan) Remaining() int {
	count := 0
	for _, step := range p {
		if !step.Done {
			count++
		}
	}
	return count
}

// DoneCount counts steps that are done.
func (p Plan) DoneCount() int {
	return len(p) - p.Remaining()
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the receiver.
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	clone := make(Plan, len(p))
	for index, step := range p {
		clone[index] = step
		clone[index].Files = append([]FileOp(nil), step.Files...)
	}
	return clone
}

// Checklist renders the plan as a prompt checklist. The step whose ID
// equals current is marked so the backend knows where it is.
func (p Plan) Checklist(current int) string {
	var builder strings.Builder
	for _, step := range p {
		box := " "
		if step.Done {
			box = "x"
		}
		fmt.Fprintf(&builder, "- [%s] %d. %s", box, step.ID, step.Description)
		if step.Unit != "" {
			fmt.Fprintf(&builder, " (%s)", step.Unit)
		}
		if step.ID == current {
			builder.WriteString(" ← YOU ARE HERE")
		}
		builder.WriteByte('\n')
	}
	return strings.TrimRight(builder.String(), "\n")
}

// Reference is an existing file the planner found worth imitating.
type Reference struct {
	File      string `json:"file"`
	Relevance string `json:"relevance"`
}

// Exploration holds what planning learned about the codebase.
type Exploration struct {
	Patterns   []string    `json:"patterns,omitempty"`
	Modules    []string    `json:"relevant_modules,omitempty"`
	References []Reference `json:"similar_implementations,omitempty"`
}

// Empty reports whether planning found nothing worth recording.
func (e Exploration) Empty() bool {
	return len(e.Patterns) == 0 && len(e.Modules) == 0 && len(e.References) == 0
}

// Context renders exploration findings as a prompt section.
func (e Exploration) Context() string {
	if e.Empty() {
		return ""
	}
	var builder strings.Builder
	if len(e.Patterns) > 0 {
		builder.WriteString("Patterns:\n")
		for _, pattern := range e.Patterns {
			builder.WriteString("- " + pattern + "\n")
		}
	}
	if len(e.Modules) > 0 {
		builder.WriteString("Relevant modules: " + strings.Join(e.Modules, ", ") + "\n")
	}
	if len(e.References) > 0 {
		builder.WriteString("Similar implementations:\n")
		for _, reference := range e.References {
			fmt.Fprintf(&builder, "- %s: %s\n", reference.File, reference.Relevance)
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}
