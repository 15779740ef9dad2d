// Package ui provides consistent styling for the tiny-dfr CLI
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Color palette - consistent across the application
var (
	ColorPrimary = lipgloss.Color("39")  // Bright blue
	ColorSuccess = lipgloss.Color("82")  // Green
	ColorError   = lipgloss.Color("196") // Red
	ColorInfo    = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)
)

// Status icons
var (
	IconSuccess = "✓"
	IconError   = "✗"
	IconActive  = "◀"
)

// FormatBool renders a setting as a check mark or a cross.
func FormatBool(v bool) string {
	if v {
		return SuccessStyle.Render(IconSuccess + " true")
	}
	return SubtleStyle.Render(IconError + " false")
}

// FormatHeader renders a section title with an optional subtitle and a
// separator underneath.
func FormatHeader(title, subtitle string) string {
	h := HeaderStyle.Render(title)
	if subtitle != "" {
		h += " " + SubtleStyle.Render(subtitle)
	}
	return h + "\n" + CreateSeparator(50, "─")
}

// Table renders rows under headers. Cells of the first column are bold;
// cells for which highlight returns true use the success colour.
func Table(headers []string, rows [][]string, highlight func(row, col int) bool) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorSubtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return lipgloss.NewStyle().
					Foreground(ColorPrimary).
					Bold(true).
					Padding(0, 1)
			case highlight != nil && highlight(row, col):
				return lipgloss.NewStyle().
					Foreground(ColorSuccess).
					Bold(true).
					Padding(0, 1)
			case col == 0:
				return lipgloss.NewStyle().
					Foreground(ColorInfo).
					Bold(true).
					Padding(0, 1)
			default:
				return lipgloss.NewStyle().
					Foreground(ColorText).
					Padding(0, 1)
			}
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}
	return SubtleStyle.Render(strings.Repeat(char, width))
}
