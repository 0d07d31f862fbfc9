package cli

import "github.com/charmbracelet/lipgloss"

var (
	brandPrimary = lipgloss.Color("#E50914")
	brandMuted   = lipgloss.Color("#8A8A8A")

	titleStyle = lipgloss.NewStyle().
			Foreground(brandPrimary).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(brandPrimary).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5FAFFF")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD75F")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	dimStyle = lipgloss.NewStyle().
			Foreground(brandMuted)
)
