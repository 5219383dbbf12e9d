// Package ui holds the terminal styles used by the spellsync CLI.
package ui

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentColor = lipgloss.AdaptiveColor{Light: "#1F6FEB", Dark: "#5EEBFF"}
	passColor   = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#67F0A8"}
	warnColor   = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#FFC857"}
	failColor   = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#FF6F91"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"}
)

var (
	AccentStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	PassStyle   = lipgloss.NewStyle().Foreground(passColor)
	WarnStyle   = lipgloss.NewStyle().Foreground(warnColor)
	FailStyle   = lipgloss.NewStyle().Foreground(failColor).Bold(true)
	MutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	LabelStyle  = lipgloss.NewStyle().Foreground(mutedColor).Width(14)
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(mutedColor)
)

// Init picks the color profile for out. Color is disabled when out is not
// a terminal or NO_COLOR is set.
func Init(out io.Writer) {
	if os.Getenv("NO_COLOR") != "" || !IsTerminal(out) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(out).EnvColorProfile())
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }

// Field is one labelled line of a details block.
type Field struct {
	Label string
	Value string
}

// Details renders a title followed by aligned label/value lines.
func Details(title string, fields []Field) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(title))
	b.WriteByte('\n')
	for _, f := range fields {
		b.WriteString(LabelStyle.Render(f.Label))
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	return b.String()
}
