package tui

import (
	"github.com/charmbracelet/lipgloss"

	"custsync/pkg/models"
)

var (
	cyan    = lipgloss.Color("#00FFFF")
	magenta = lipgloss.Color("#FF00FF")
	green   = lipgloss.Color("#39FF14")
	yellow  = lipgloss.Color("#FFFF00")
	red     = lipgloss.Color("#FF3030")
	dim     = lipgloss.Color("#808080")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(magenta).
			Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Foreground(cyan).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(cyan).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(yellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(red)

	helpStyle = lipgloss.NewStyle().
			Foreground(dim).
			PaddingLeft(2)
)

func statusStyle(status models.JobStatus) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch status {
	case models.JobCompleted:
		return style.Foreground(green)
	case models.JobFailed:
		return style.Foreground(red)
	case models.JobRunning:
		return style.Foreground(cyan)
	default:
		return style.Foreground(yellow)
	}
}
