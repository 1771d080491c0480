// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package decisionui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/tui"
)

// Action is how the operator left the editor.
type Action int

const (
	// ActionContinue accepts the edited records.
	ActionContinue Action = iota

	// ActionReplan asks for a new plan built on the edited records.
	ActionReplan

	// ActionQuit abandons the run.
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionReplan:
		return "replan"
	case ActionQuit:
		return "quit"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Result is the editor's outcome. Decisions is nil when the operator
// quit.
type Result struct {
	Decisions []plan.Decision
	Action    Action
}

// Minimum terminal size the list can be drawn in.
const (
	minWidth  = 40
	minHeight = 8
)

// Model is the bubbletea model of the editor.
type Model struct {
	context   string
	decisions []plan.Decision
	cursor    int

	editing bool
	input   textinput.Model

	keys  KeyMap
	theme tui.Theme

	width  int
	height int

	finished bool
	action   Action
}

// NewModel returns a model editing a copy of decisions. context is a
// one-line description shown under the header.
func NewModel(context string, decisions []plan.Decision) Model {
	input := textinput.New()
	input.Prompt = "Rationale: "
	input.CharLimit = 500
	return Model{
		context:   context,
		decisions: append([]plan.Decision(nil), decisions...),
		input:     input,
		keys:      DefaultKeyMap,
		theme:     tui.DefaultTheme,
		width:     80,
		height:    24,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.input.Width = max(message.Width-len(m.input.Prompt)-2, 10)
		return m, nil
	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(message)
		}
		return m.updateList(message)
	}
	if m.editing {
		var command tea.Cmd
		m.input, command = m.input.Update(message)
		return m, command
	}
	return m, nil
}

func (m Model) updateList(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Quit):
		return m.finish(ActionQuit)
	case key.Matches(message, m.keys.Confirm):
		return m.finish(ActionContinue)
	case key.Matches(message, m.keys.Replan):
		return m.finish(ActionReplan)
	case len(m.decisions) == 0:
		return m, nil
	case key.Matches(message, m.keys.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(message, m.keys.Down):
		m.cursor = min(m.cursor+1, len(m.decisions)-1)
	case key.Matches(message, m.keys.Toggle):
		m.decisions[m.cursor].Selected = !m.decisions[m.cursor].Selected
	case key.Matches(message, m.keys.Edit):
		m.editing = true
		m.input.SetValue(m.decisions[m.cursor].Rationale)
		m.input.CursorEnd()
		return m, m.input.Focus()
	}
	return m, nil
}

func (m Model) updateEditing(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Save):
		m.decisions[m.cursor].Rationale = strings.TrimSpace(m.input.Value())
		m.stopEditing()
		return m, nil
	case key.Matches(message, m.keys.Cancel):
		m.stopEditing()
		return m, nil
	case key.Matches(message, m.keys.Clear):
		m.input.SetValue("")
		return m, nil
	}
	var command tea.Cmd
	m.input, command = m.input.Update(message)
	return m, command
}

func (m *Model) stopEditing() {
	m.editing = false
	m.input.Blur()
	m.input.SetValue("")
}

func (m Model) finish(action Action) (tea.Model, tea.Cmd) {
	m.finished = true
	m.action = action
	return m, tea.Quit
}

// Result returns the outcome. A model that has not finished counts as
// quit.
func (m Model) Result() Result {
	if !m.finished || m.action == ActionQuit {
		return Result{Action: ActionQuit}
	}
	return Result{Decisions: append([]plan.Decision(nil), m.decisions...), Action: m.action}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.finished {
		return ""
	}
	if m.width < minWidth || m.height < minHeight {
		return "Terminal too small"
	}

	border := lipgloss.NewStyle().Foreground(m.theme.BorderColor)
	header := lipgloss.NewStyle().Bold(true).Foreground(m.theme.HeaderForeground)
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)
	help := lipgloss.NewStyle().Foreground(m.theme.HelpText)

	var lines []string
	title := " Decisions "
	lines = append(lines, border.Render("─")+header.Render(title)+border.Render(strings.Repeat("─", max(m.width-ansi.StringWidth(title)-1, 0))))
	if m.context != "" {
		lines = append(lines, faint.Render(ansi.Truncate(m.context, m.width-2, "…")))
	}
	lines = append(lines, "")

	// Keep the footer: rule, help, and the edit line.
	available := m.height - len(lines) - 3
	items := m.renderItems()
	start := 0
	if m.cursor < len(items) {
		// Scroll so the cursor's item starts inside the window.
		used := 0
		for index := m.cursor; index >= 0; index-- {
			used += len(items[index])
			if used > available {
				start = index + 1
				break
			}
		}
	}
	var body []string
	for _, item := range items[start:] {
		body = append(body, item...)
	}
	if len(body) > available {
		body = body[:available]
	}
	lines = append(lines, body...)
	for len(lines) < m.height-3 {
		lines = append(lines, "")
	}

	lines = append(lines, border.Render(strings.Repeat("─", m.width)))
	bindings := m.keys.listHelp()
	if m.editing {
		bindings = m.keys.editHelp()
	}
	var parts []string
	for _, binding := range bindings {
		parts = append(parts, binding.Help().Key+" "+binding.Help().Desc)
	}
	lines = append(lines, help.Render(ansi.Truncate(strings.Join(parts, "  "), m.width, "…")))
	if m.editing {
		lines = append(lines, m.input.View())
	} else {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// renderItems returns each record's lines: marker, checkbox, id and
// wrapped statement, then the wrapped rationale and a spacer.
func (m Model) renderItems() [][]string {
	normal := lipgloss.NewStyle().Foreground(m.theme.NormalText)
	current := lipgloss.NewStyle().Bold(true).Foreground(m.theme.SelectedForeground).Background(m.theme.SelectedBackground)
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)

	items := make([][]string, len(m.decisions))
	for index, decision := range m.decisions {
		marker := "  "
		if index == m.cursor {
			marker = "> "
		}
		box := lipgloss.NewStyle().Foreground(m.theme.Rejected).Render("[ ]")
		if decision.Selected {
			box = lipgloss.NewStyle().Foreground(m.theme.Accepted).Render("[x]")
		}
		if decision.IsManual() {
			box = lipgloss.NewStyle().Foreground(m.theme.Manual).Render("[!]")
		}
		lead := fmt.Sprintf("%s%s %s. ", marker, box, decision.ID)
		indent := strings.Repeat(" ", ansi.StringWidth(lead))

		style := normal
		if index == m.cursor {
			style = current
		}
		wrapped := ansi.Wrap(decision.Statement, max(m.width-len(indent)-1, 10), " ")
		var lines []string
		for lineIndex, line := range strings.Split(wrapped, "\n") {
			prefix := indent
			if lineIndex == 0 {
				prefix = lead
			}
			lines = append(lines, prefix+style.Render(line))
		}
		if decision.Rationale != "" {
			rationaleIndent := strings.Repeat(" ", len(marker)+4)
			rationale := ansi.Wrap(decision.Rationale, max(m.width-len(rationaleIndent)-4, 10), " ")
			for lineIndex, line := range strings.Split(rationale, "\n") {
				arrow := "   "
				if lineIndex == 0 {
					arrow = "-> "
				}
				lines = append(lines, rationaleIndent+faint.Render(arrow+line))
			}
		}
		items[index] = append(lines, "")
	}
	return items
}
