package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Send        key.Binding
	ToggleVoice key.Binding
	Dictate     key.Binding
	Speak       key.Binding
	SetName     key.Binding
	Cancel      key.Binding
	Quit        key.Binding
}

var DefaultKeyMap = KeyMap{
	Send: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	ToggleVoice: key.NewBinding(
		key.WithKeys("ctrl+w"),
		key.WithHelp("ctrl+w", "wake word mode"),
	),
	Dictate: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "dictate"),
	),
	Speak: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "read reply aloud"),
	),
	SetName: key.NewBinding(
		key.WithKeys("ctrl+n"),
		key.WithHelp("ctrl+n", "set name"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "quit"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.ToggleVoice, k.Dictate, k.Speak, k.SetName, k.Quit}
}
