package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	StyleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Status styles
var (
	StyleRunning = lipgloss.NewStyle().
			Foreground(lipgloss.Color("yellow")).
			Bold(true)

	StyleCompleted = lipgloss.NewStyle().
			Foreground(lipgloss.Color("green")).
			Bold(true)

	StyleFailed = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red")).
			Bold(true)

	StyleBlocked = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)

	StylePending = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)
