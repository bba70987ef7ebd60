package tui

import "github.com/charmbracelet/lipgloss"

var (
	Accent = lipgloss.Color("#7c3aed")
	Muted  = lipgloss.Color("#6b7280")
	Light  = lipgloss.Color("#f5f5f4")
	Alert  = lipgloss.Color("#dc2626")

	TitleStyle = lipgloss.NewStyle().
		Foreground(Light).
		Background(Accent).
		Bold(true).
		Padding(0, 1)

	UserLabelStyle = lipgloss.NewStyle().
		Foreground(Accent).
		Bold(true)

	AssistantLabelStyle = lipgloss.NewStyle().
		Foreground(Muted).
		Bold(true)

	MessageStyle = lipgloss.NewStyle().
		PaddingLeft(2)

	StatusStyle = lipgloss.NewStyle().
		Foreground(Muted)

	NoticeStyle = lipgloss.NewStyle().
		Foreground(Alert)

	InputStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Accent).
		Padding(0, 1)
)
