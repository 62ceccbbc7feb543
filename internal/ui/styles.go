package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"skillvet/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF")).
			Background(lipgloss.Color("#7D56F4")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	blockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF")).
			Background(lipgloss.Color("196")).
			Bold(true).
			Padding(0, 1)

	allowedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	headerCellStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle       = lipgloss.NewStyle().Padding(0, 1)
	borderStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var severityColors = map[model.Severity]lipgloss.Color{
	model.SeverityCritical: lipgloss.Color("196"), // Red
	model.SeverityHigh:     lipgloss.Color("208"), // Orange
	model.SeverityMedium:   lipgloss.Color("220"), // Yellow
	model.SeverityLow:      lipgloss.Color("39"),  // Blue
	model.SeverityInfo:     lipgloss.Color("245"), // Gray
}

// severityStyle colors a severity label.
func severityStyle(s model.Severity) lipgloss.Style {
	c, ok := severityColors[s]
	if !ok {
		c = severityColors[model.SeverityInfo]
	}
	st := lipgloss.NewStyle().Foreground(c)
	if s == model.SeverityCritical || s == model.SeverityHigh {
		st = st.Bold(true)
	}
	return st
}

// riskStyle reuses the severity palette for risk levels.
func riskStyle(r model.RiskLevel) lipgloss.Style {
	return severityStyle(model.Severity(r))
}

// SetColor turns terminal colors on or off for everything this package
// renders. When enabled the profile is taken from the environment, so
// NO_COLOR and non-terminal outputs still fall back to plain text.
func SetColor(enabled bool) {
	if !enabled {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}
