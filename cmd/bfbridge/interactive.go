package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/bfbridge/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	queryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	paramStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// query is one action offered by the interactive browser. Every parameter
// is an integer.
type query struct {
	name   string
	params []string
	run    func(s *runtime.Session, args []int) (string, error)
}

var queries = []query{
	{name: "metadata", run: func(s *runtime.Session, _ []int) (string, error) {
		md, err := s.Metadata()
		if err != nil {
			return "", err
		}
		out, err := yaml.Marshal(md)
		return string(out), err
	}},
	{name: "ome-xml", run: func(s *runtime.Session, _ []int) (string, error) {
		return s.DumpOMEXML()
	}},
	{name: "used-files", run: func(s *runtime.Session, _ []int) (string, error) {
		files, err := s.UsedFiles()
		return strings.Join(files, "\n"), err
	}},
	{name: "set-series", params: []string{"series"}, run: func(s *runtime.Session, a []int) (string, error) {
		if err := s.SetSeries(a[0]); err != nil {
			return "", err
		}
		return describeLevel(s)
	}},
	{name: "set-resolution", params: []string{"level"}, run: func(s *runtime.Session, a []int) (string, error) {
		if err := s.SetResolution(a[0]); err != nil {
			return "", err
		}
		return describeLevel(s)
	}},
	{name: "mpp", params: []string{"series"}, run: func(s *runtime.Session, a []int) (string, error) {
		x, err := s.MPPX(a[0])
		if err != nil {
			return "", err
		}
		y, err := s.MPPY(a[0])
		if err != nil {
			return "", err
		}
		z, err := s.MPPZ(a[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("x=%g y=%g z=%g µm/px", x, y, z), nil
	}},
	{name: "read-region", params: []string{"plane", "x", "y", "w", "h"}, run: func(s *runtime.Session, a []int) (string, error) {
		b, err := s.OpenBytes(a[0], a[1], a[2], a[3], a[4])
		if err != nil {
			return "", err
		}
		return summarizeBytes(b), nil
	}},
	{name: "thumbnail", params: []string{"plane", "max-w", "max-h"}, run: func(s *runtime.Session, a []int) (string, error) {
		img, err := s.OpenThumbImage(a[0], a[1], a[2])
		if err != nil {
			return "", err
		}
		r := img.Bounds()
		return fmt.Sprintf("%dx%d %T", r.Dx(), r.Dy(), img), nil
	}},
}

func describeLevel(s *runtime.Session) (string, error) {
	w, err := s.SizeX()
	if err != nil {
		return "", err
	}
	h, err := s.SizeY()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d x %d", w, h), nil
}

func summarizeBytes(b []byte) string {
	n := min(len(b), 16)
	return fmt.Sprintf("%d bytes\n% x", len(b), b[:n])
}

type interactiveModel struct {
	ctx      context.Context
	r        *reader
	err      error
	format   string
	result   string
	inputs   []textinput.Model
	view     viewport.Model
	selected int
	focusIdx int
	width    int
	height   int
	loaded   bool
	state    modelState
}

type modelState int

const (
	stateSelect modelState = iota
	stateInputArgs
	stateShowResult
)

type loadedMsg struct {
	err    error
	format string
}

type queryResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, r *reader) *interactiveModel {
	return &interactiveModel{ctx: ctx, r: r, state: stateSelect, width: 80, height: 24}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	var format string
	err := m.r.do(m.ctx, func(s *runtime.Session) error {
		var err error
		format, err = s.Format()
		return err
	})
	return loadedMsg{err: err, format: format}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.state == stateShowResult {
			m.view.Width, m.view.Height = m.viewSize()
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
				return m, nil
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(queries)-1 {
				m.selected++
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelect:
				if !m.loaded {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.runQuery
				}
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				return m, m.runQuery

			case stateShowResult:
				m.reset()
				return m, nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
				return m, nil
			}

		case "esc":
			if m.state != stateSelect {
				m.reset()
				return m, nil
			}
		}

	case loadedMsg:
		m.err = msg.err
		m.format = msg.format
		m.loaded = msg.err == nil
		return m, nil

	case queryResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		w, h := m.viewSize()
		m.view = viewport.New(w, h)
		if msg.err != nil {
			m.view.SetContent(errorStyle.Render(fmt.Sprintf("Error: %v", msg.err)))
		} else {
			m.view.SetContent(resultStyle.Render(msg.result))
		}
		return m, nil
	}

	switch m.state {
	case stateInputArgs:
		cmds := make([]tea.Cmd, len(m.inputs))
		for i := range m.inputs {
			m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
		}
		return m, tea.Batch(cmds...)
	case stateShowResult:
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelect
	m.inputs = nil
	m.result = ""
	m.err = nil
}

// viewSize leaves room for the title and help lines.
func (m *interactiveModel) viewSize() (int, int) {
	return m.width, max(m.height-6, 3)
}

func (m *interactiveModel) prepareInputs() {
	q := queries[m.selected]
	m.inputs = make([]textinput.Model, len(q.params))
	for i, p := range q.params {
		ti := textinput.New()
		ti.Placeholder = "0"
		ti.Prompt = p + ": "
		ti.Width = 20
		ti.CharLimit = 10
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) runQuery() tea.Msg {
	q := queries[m.selected]
	args := make([]int, len(m.inputs))
	for i, in := range m.inputs {
		v := strings.TrimSpace(in.Value())
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return queryResultMsg{err: fmt.Errorf("%s: bad number %q", q.params[i], v)}
		}
		args[i] = n
	}

	var out string
	err := m.r.do(m.ctx, func(s *runtime.Session) error {
		var err error
		out, err = q.run(s, args)
		return err
	})
	return queryResultMsg{result: out, err: err}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return "Opening " + m.r.opts.file + "..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("bfbridge"))
	b.WriteString(" ")
	b.WriteString(m.r.opts.file)
	b.WriteString(" ")
	b.WriteString(paramStyle.Render(m.format))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelect:
		b.WriteString("Select a query:\n\n")
		for i, q := range queries {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatQuery(q)))
			} else {
				b.WriteString("  " + formatQuery(q))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • q quit"))

	case stateInputArgs:
		b.WriteString(fmt.Sprintf("Running %s\n\n", queryStyle.Render(queries[m.selected].name)))
		for _, in := range m.inputs {
			b.WriteString(in.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))

	case stateShowResult:
		b.WriteString(queryStyle.Render(queries[m.selected].name))
		b.WriteString(":\n")
		b.WriteString(m.view.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • enter continue • q quit"))
	}
	return b.String()
}

func formatQuery(q query) string {
	if len(q.params) == 0 {
		return queryStyle.Render(q.name)
	}
	return queryStyle.Render(q.name) + "(" + paramStyle.Render(strings.Join(q.params, ", ")) + ")"
}

func runInteractive(ctx context.Context, r *reader) error {
	p := tea.NewProgram(newInteractiveModel(ctx, r), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
