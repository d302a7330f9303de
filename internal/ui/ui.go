// Package ui holds the terminal styling shared by the CLI commands.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	// TitleStyle renders board and stack headings.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	// DimStyle renders secondary detail like ids and timestamps.
	DimStyle = lipgloss.NewStyle().Faint(true)

	// ErrStyle renders failures.
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	// OkStyle renders success confirmations.
	OkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	// PendingStyle marks rows with unpushed local changes.
	PendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Interactive reports whether stdout is a terminal that supports
// styled output. Plain pipes get plain text.
func Interactive() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.DefaultOutput().Profile != termenv.Ascii
}

// Render applies style when the terminal supports it.
func Render(style lipgloss.Style, s string) string {
	if !Interactive() {
		return s
	}
	return style.Render(s)
}

// Width returns the terminal width, or a conservative default when
// stdout is not a terminal.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// LabelChip renders a colored label swatch using the label's hex color.
func LabelChip(title, hexColor string) string {
	if !Interactive() || hexColor == "" {
		return "[" + title + "]"
	}
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("#"+hexColor)).
		Padding(0, 1)
	return style.Render(title)
}
