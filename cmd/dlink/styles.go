package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for terminal output.
var (
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))             // gray
	valueStyle   = lipgloss.NewStyle().Bold(true)                                  // bold
	onStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))  // green
	offStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))  // red
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))  // cyan
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))             // magenta
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true) // dim
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))             // red
)
