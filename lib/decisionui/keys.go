// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package decisionui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the editor's key bindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Edit    key.Binding
	Replan  key.Binding
	Confirm key.Binding
	Quit    key.Binding

	// Active while a rationale is being edited.
	Save   key.Binding
	Cancel key.Binding
	Clear  key.Binding
}

// DefaultKeyMap uses vim-style navigation alongside the arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "toggle"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit rationale"),
	),
	Replan: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("C-r", "replan"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "confirm"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Save: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "save"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Clear: key.NewBinding(
		key.WithKeys("ctrl+u"),
		key.WithHelp("C-u", "clear"),
	),
}

func (k KeyMap) listHelp() []key.Binding {
	return []key.Binding{k.Down, k.Toggle, k.Edit, k.Replan, k.Confirm, k.Quit}
}

func (k KeyMap) editHelp() []key.Binding {
	return []key.Binding{k.Save, k.Cancel, k.Clear}
}
