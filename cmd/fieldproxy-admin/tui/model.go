package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/r9s-ai/fieldproxy/pkg/fieldfilter"
	"github.com/r9s-ai/fieldproxy/pkg/selector"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// Rows used by everything except the viewport.
const chromeHeight = 5

type model struct {
	body []byte
	opts fieldfilter.Options

	input textinput.Model
	view  viewport.Model

	last      string
	canonical string
	reason    string
	output    string
	err       error
}

func newModel(body []byte, initial string, opts fieldfilter.Options) *model {
	ti := textinput.New()
	ti.Placeholder = "id,title{rendered}"
	ti.Prompt = "fields> "
	ti.SetValue(initial)
	ti.Focus()

	opts.Indent = "  "
	m := &model{
		body:  body,
		opts:  opts,
		input: ti,
		view:  viewport.New(80, 20),
	}
	m.apply()
	return m
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}
	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 10)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.input.Value() != m.last {
		m.apply()
	}
	return m, tea.Batch(cmds...)
}

// apply re-runs the filter for the current input.
func (m *model) apply() {
	m.last = m.input.Value()
	tree := selector.Parse(m.last)
	m.canonical = tree.String()
	out, res, err := fieldfilter.FilterJSONTree(m.body, tree, m.opts)
	m.reason = res.Reason
	m.err = err
	if !res.Applied {
		// keep the unfiltered document readable
		if doc, derr := fieldfilter.Decode(m.body); derr == nil {
			if b, eerr := fieldfilter.Encode(doc, m.opts.Indent); eerr == nil {
				out = b
			}
		}
	}
	m.output = string(out)
	m.view.SetContent(m.output)
	m.view.GotoTop()
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("fieldproxy selector playground"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	status := fmt.Sprintf("canonical=%q outcome=%s", m.canonical, m.reason)
	if m.err != nil {
		b.WriteString(errorStyle.Render(status + " error=" + m.err.Error()))
	} else {
		b.WriteString(statusStyle.Render(status))
	}
	b.WriteString("\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("esc quit • ↑/↓ pgup/pgdn scroll"))
	return b.String()
}
