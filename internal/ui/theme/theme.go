package theme

import (
	"charm.land/lipgloss/v2"
)

// Color palette
var (
	Primary = lipgloss.Color("#8B5CF6") // Vivid Purple
	Accent  = lipgloss.Color("#F97316") // Orange
	Success = lipgloss.Color("#22C55E") // Green
	Error   = lipgloss.Color("#F43F5E") // Rose
	TextDim = lipgloss.Color("#94A3B8") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextDim)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)
)

// Status colors
var (
	OnTrack = lipgloss.NewStyle().
		Foreground(Success)

	Behind = lipgloss.NewStyle().
		Foreground(Accent)

	AtRisk = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)
)

// Plain is a style that renders text unchanged, used when output is not a
// terminal.
var Plain = lipgloss.NewStyle()
