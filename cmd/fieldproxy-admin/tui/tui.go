// Package tui is an interactive selector playground: type a selector and
// watch the filtered document update.
package tui

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/r9s-ai/fieldproxy/pkg/fieldfilter"
)

func Run(body []byte, initial string, opts fieldfilter.Options, in io.Reader, out io.Writer) error {
	if _, err := fieldfilter.Decode(body); err != nil {
		return err
	}
	m := newModel(body, initial, opts)
	p := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui run failed: %w", err)
	}
	return nil
}
