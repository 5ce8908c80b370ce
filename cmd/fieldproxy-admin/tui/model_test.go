package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/r9s-ai/fieldproxy/pkg/fieldfilter"
)

const doc = `{"id":1,"title":{"rendered":"Hi"},"content":"x"}`

func typeText(m *model, s string) *model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(*model)
}

func TestModel_InitialSelector(t *testing.T) {
	m := newModel([]byte(doc), "id", fieldfilter.Options{})
	if m.reason != fieldfilter.ReasonApplied {
		t.Fatalf("reason=%q", m.reason)
	}
	if m.output != "{\n  \"id\": 1\n}" {
		t.Fatalf("output=%q", m.output)
	}
}

func TestModel_TypingRefilters(t *testing.T) {
	m := newModel([]byte(doc), "", fieldfilter.Options{})
	if m.reason != fieldfilter.ReasonEmptySelection {
		t.Fatalf("reason=%q", m.reason)
	}
	if !strings.Contains(m.output, `"content": "x"`) {
		t.Fatalf("empty selection should show the whole document: %q", m.output)
	}

	m = typeText(m, "title{rendered}")
	if m.canonical != "title{rendered}" {
		t.Fatalf("canonical=%q", m.canonical)
	}
	if strings.Contains(m.output, "content") || !strings.Contains(m.output, `"rendered": "Hi"`) {
		t.Fatalf("output=%q", m.output)
	}
	if !strings.Contains(m.View(), "outcome=applied") {
		t.Fatalf("view missing outcome:\n%s", m.View())
	}
}

func TestModel_WindowSizeAndQuit(t *testing.T) {
	m := newModel([]byte(doc), "id", fieldfilter.Options{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(*model)
	if m.view.Width != 100 || m.view.Height != 30-chromeHeight {
		t.Fatalf("viewport=%dx%d", m.view.Width, m.view.Height)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestRun_RejectsInvalidJSON(t *testing.T) {
	if err := Run([]byte(`{"id":`), "", fieldfilter.Options{}, strings.NewReader(""), &strings.Builder{}); err == nil {
		t.Fatalf("expected decode error")
	}
}
