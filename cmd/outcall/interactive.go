package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	fieldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// formField binds one text input to a requestFlags field.
type formField struct {
	label string
	hint  string
	bind  func(*requestFlags) *string
}

var formFields = []formField{
	{"url", "https://...", func(f *requestFlags) *string { return &f.url }},
	{"method", "GET | POST | HEAD", func(f *requestFlags) *string { return &f.method }},
	{"max bytes", "2097152", func(f *requestFlags) *string { return &f.maxBytes }},
	{"body", "text", func(f *requestFlags) *string { return &f.body }},
	{"transform canister", "principal", func(f *requestFlags) *string { return &f.transformCanister }},
	{"transform method", "query name", func(f *requestFlags) *string { return &f.transformMethod }},
	{"transform context", "text or 0x...", func(f *requestFlags) *string { return &f.transformContext }},
}

type interactiveModel struct {
	err      error
	report   report
	inputs   []textinput.Model
	headers  headerList
	focusIdx int
}

func newInteractiveModel(initial requestFlags) *interactiveModel {
	m := &interactiveModel{headers: initial.headers}
	m.inputs = make([]textinput.Model, len(formFields))
	for i, f := range formFields {
		ti := textinput.New()
		ti.Placeholder = f.hint
		ti.Prompt = fmt.Sprintf("%-19s ", f.label+":")
		ti.Width = 60
		ti.SetValue(*f.bind(&initial))
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.recompute()
	return m
}

func runInteractive(initial requestFlags) error {
	if initial.method == "" {
		initial.method = "GET"
	}
	p := tea.NewProgram(newInteractiveModel(initial), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

// flags collects the current form values.
func (m *interactiveModel) flags() requestFlags {
	f := requestFlags{headers: m.headers}
	for i, field := range formFields {
		*field.bind(&f) = strings.TrimSpace(m.inputs[i].Value())
	}
	return f
}

func (m *interactiveModel) recompute() {
	arg, err := buildArgument(m.flags())
	if err != nil {
		m.err = err
		return
	}
	r, err := describe(arg)
	if err != nil {
		m.err = err
		return
	}
	m.report, m.err = r, nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "tab", "down", "enter":
			m.moveFocus(1)
			return m, nil

		case "shift+tab", "up":
			m.moveFocus(-1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focusIdx], cmd = m.inputs[m.focusIdx].Update(msg)
	m.recompute()
	return m, cmd
}

func (m *interactiveModel) moveFocus(delta int) {
	m.inputs[m.focusIdx].Blur()
	m.focusIdx = (m.focusIdx + delta + len(m.inputs)) % len(m.inputs)
	m.inputs[m.focusIdx].Focus()
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("HTTP Outcall"))
	b.WriteString(" ")
	b.WriteString(fieldStyle.Render("aaaaa-aa.http_request"))
	b.WriteString("\n\n")

	for _, input := range m.inputs {
		b.WriteString(input.View())
		b.WriteString("\n")
	}
	for _, h := range m.headers {
		b.WriteString(typeStyle.Render(fmt.Sprintf("header: %s: %s", h.Name, h.Value)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else {
		for _, line := range m.report.lines() {
			b.WriteString(resultStyle.Render(line))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab/↓ next field • shift+tab/↑ previous • esc quit"))

	return b.String()
}
