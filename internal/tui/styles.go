package tui

import (
	"crmimport/internal/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.AdaptiveColor{Light: "#005577", Dark: "#00aadd"}

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#dddddd"}).
			Bold(true).
			Margin(1, 0, 1, 0)

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#626262", Dark: "#a8a8a8"})

	activeStageStyle = lipgloss.NewStyle().
				Foreground(accent).
				Bold(true).
				Underline(true)

	menuItemStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Margin(0, 1).
			Foreground(lipgloss.AdaptiveColor{Light: "#262626", Dark: "#d9d9d9"})

	selectedMenuItemStyle = menuItemStyle.
				Foreground(lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}).
				Background(accent).
				Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#626262", Dark: "#a8a8a8"}).
			Margin(1, 0, 0, 0)

	formStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2).
			Margin(1, 0)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#859900", Dark: "#50fa7b"}).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#8a8a8a", Dark: "#6c6c6c"})

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#859900", Dark: "#50fa7b"}).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#b58900", Dark: "#f1fa8c"}).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#dc322f", Dark: "#ff5555"}).
			Bold(true)
)

// statusStyle colors a record status badge.
func statusStyle(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusOK:
		return successStyle
	case models.StatusWarning:
		return warningStyle
	case models.StatusError, models.StatusErrorCritical:
		return errorStyle
	}
	return dimStyle
}

// frameWidth is the usable width inside the terminal margins.
func frameWidth(width int) int {
	if width <= 0 {
		return 80
	}
	return max(width-4, 40)
}
