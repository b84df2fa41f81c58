// Package render draws llamacli's terminal output: the progress spinner and
// the styles used for warnings and errors.
package render

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// ANSI color codes
const (
	ColorYellow = lipgloss.Color("11") // Pending / warnings
	ColorRed    = lipgloss.Color("9")  // Errors
)

// Style definitions using Lip Gloss. Colors are dropped automatically when
// the output is not a terminal.
var (
	// SpinnerStyle is used for the progress glyph
	SpinnerStyle = lipgloss.NewStyle().Foreground(ColorYellow)

	// WarningStyle is used for the dangerous-command confirmation
	WarningStyle = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
)

// ErrorStyleFor returns the fatal error style with colors decided by w, not
// by stdout. Writers that are not terminals get plain text.
func ErrorStyleFor(w io.Writer) lipgloss.Style {
	return lipgloss.NewRenderer(w).NewStyle().Foreground(ColorRed)
}
