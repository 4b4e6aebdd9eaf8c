package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up     key.Binding
	down   key.Binding
	yes    key.Binding
	no     key.Binding
	cancel key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		yes:    key.NewBinding(key.WithKeys("y", "enter"), key.WithHelp("y", "upload")),
		no:     key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "abort")),
		cancel: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down},
		{k.yes, k.no},
		{k.cancel, k.quit},
	}
}
