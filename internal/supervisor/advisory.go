package supervisor

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	advisoryHeader = "vire: Preloaded files have been modified:"
	advisoryHint   = "Press R for full reload."
	advisoryPath   = "        "
	advisoryIndent = "      "
)

// advisory renders the out-of-sync notice. Colour follows the writer's
// terminal and the NO_COLOR / CLICOLOR_FORCE environment.
type advisory struct {
	header lipgloss.Style
	path   lipgloss.Style
	hint   lipgloss.Style
}

func newAdvisory(w io.Writer) advisory {
	renderer := lipgloss.NewRenderer(w)
	renderer.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
	return advisory{
		header: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		path:   renderer.NewStyle().Foreground(lipgloss.Color("6")),
		hint:   renderer.NewStyle().Faint(true),
	}
}

func (a advisory) render(paths []string) string {
	var b strings.Builder
	b.WriteString(a.header.Render(advisoryHeader))
	b.WriteByte('\n')
	for _, path := range paths {
		b.WriteString(advisoryPath)
		b.WriteString(a.path.Render(path))
		b.WriteByte('\n')
	}
	b.WriteString(advisoryIndent)
	b.WriteString(a.hint.Render(advisoryHint))
	b.WriteByte('\n')
	return b.String()
}
