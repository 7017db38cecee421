package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed   = lipgloss.Color("#FF5555")
	colorGreen = lipgloss.Color("#50FA7B")
	colorCyan  = lipgloss.Color("#8BE9FD")
	colorGray  = lipgloss.Color("#6272A4")
	colorWhite = lipgloss.Color("#F8F8F2")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle = lipgloss.NewStyle().Foreground(colorWhite)
	critStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	helpStyle  = lipgloss.NewStyle().Foreground(colorGray)
)
