// Package statusfmt provides colour helpers for terminal output, replacing
// the Python implementation's terminal-detecting Colors class with the
// pack's terminal-styling library. The `check`, `push` and `sync` commands
// print plain text and do not call these helpers.
//
// Grounded on the teacher's direct dependency on charmbracelet/lipgloss and
// the process-wide colour-enabled toggle in the design notes ("a single
// process-wide toggle for coloured output ... set from CLI flag or
// environment at startup, read elsewhere; pass it explicitly where
// testability matters").
package statusfmt

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Enabled is the single process-wide colour toggle, set once at startup from
// --no-color / NO_COLOR and read by every helper in this package.
var Enabled = os.Getenv("NO_COLOR") == ""

func render(s lipgloss.Style, text string) string {
	if !Enabled {
		return text
	}
	return s.Render(text)
}

func OK(text string) string   { return render(okStyle, text) }
func Warn(text string) string { return render(warnStyle, text) }
func Err(text string) string  { return render(errStyle, text) }
func Dim(text string) string  { return render(dimStyle, text) }
