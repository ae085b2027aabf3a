package tui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorAccent  = lipgloss.Color("#FF5F87")
	ColorText    = lipgloss.Color("#FAFAFA")
	ColorMuted   = lipgloss.Color("#7D7D7D")
	ColorGood    = lipgloss.Color("#04B575")
	ColorWarning = lipgloss.Color("#FFAA00")
	ColorError   = lipgloss.Color("#FF3300")
)

var (
	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Padding(0, 1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Width(8)

	StyleValue = lipgloss.NewStyle().
			Foreground(ColorText)

	StylePhaseActive = lipgloss.NewStyle().
				Foreground(ColorGood).
				Bold(true)

	StylePhaseIdle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	StyleFeedback = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true).
			Padding(1, 2)

	StyleCursor = lipgloss.NewStyle().
			Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StylePanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Padding(0, 1)
)
