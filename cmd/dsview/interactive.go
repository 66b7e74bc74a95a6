package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	ds "github.com/wippyai/datastruct"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// frame is one level of the browsing stack.
type frame struct {
	name     string
	value    any
	entries  []entry
	selected int
}

type interactiveModel struct {
	err      error
	dec      decoder
	opts     options
	filename string
	stack    []frame
	filter   textinput.Model
	size     int
	state    modelState
}

type modelState int

const (
	stateBrowse modelState = iota
	stateFilter
	stateShowValue
)

func newInteractiveModel(filename string, dec decoder, opts options) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "field name"
	ti.Prompt = "/"
	ti.Width = 40
	return &interactiveModel{
		filename: filename,
		dec:      dec,
		opts:     opts,
		filter:   ti,
		state:    stateBrowse,
	}
}

type loadedMsg struct {
	err  error
	rec  *ds.Record
	size int
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	rec, err := m.dec(data, m.opts)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{rec: rec, size: len(data)}
}

func (m *interactiveModel) top() *frame {
	return &m.stack[len(m.stack)-1]
}

// visible returns the indexes of the current entries matching the filter.
func (m *interactiveModel) visible() []int {
	f := m.top()
	q := strings.ToLower(m.filter.Value())
	idx := make([]int, 0, len(f.entries))
	for i, e := range f.entries {
		if q == "" || strings.Contains(strings.ToLower(e.name), q) {
			idx = append(idx, i)
		}
	}
	return idx
}

func (m *interactiveModel) push(e entry) {
	entries, _ := children(e.value)
	m.stack = append(m.stack, frame{name: e.name, value: e.value, entries: entries})
	m.filter.SetValue("")
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateFilter {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter", "esc":
				m.filter.Blur()
				m.state = stateBrowse
				m.top().selected = 0
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.top().selected = 0
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateBrowse && len(m.stack) > 0 && m.top().selected > 0 {
				m.top().selected--
			}

		case "down", "j":
			if m.state == stateBrowse && len(m.stack) > 0 && m.top().selected < len(m.visible())-1 {
				m.top().selected++
			}

		case "/":
			if m.state == stateBrowse && len(m.stack) > 0 {
				m.state = stateFilter
				return m, m.filter.Focus()
			}

		case "enter", "right", "l":
			switch m.state {
			case stateBrowse:
				if len(m.stack) == 0 {
					break
				}
				vis := m.visible()
				if len(vis) == 0 {
					break
				}
				e := m.top().entries[vis[m.top().selected]]
				m.push(e)
				if _, ok := children(e.value); !ok {
					m.state = stateShowValue
				}
			case stateShowValue:
				m.stack = m.stack[:len(m.stack)-1]
				m.state = stateBrowse
			}

		case "esc", "left", "h", "backspace":
			switch {
			case m.state == stateShowValue:
				m.stack = m.stack[:len(m.stack)-1]
				m.state = stateBrowse
			case m.filter.Value() != "":
				m.filter.SetValue("")
			case len(m.stack) > 1:
				m.stack = m.stack[:len(m.stack)-1]
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.size = msg.size
		m.push(entry{name: msg.rec.Type().Name(), value: msg.rec})
	}

	return m, nil
}

func (m *interactiveModel) path() string {
	names := make([]string, len(m.stack))
	for i, f := range m.stack {
		names[i] = f.name
	}
	return strings.Join(names, ".")
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.stack) == 0 {
		return "Decoding " + m.filename + "..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("dsview"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%s (%d bytes)", m.filename, m.size))
	b.WriteString("\n")
	b.WriteString(typeStyle.Render(m.path()))
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse, stateFilter:
		f := m.top()
		vis := m.visible()
		if len(vis) == 0 {
			b.WriteString(helpStyle.Render("(no fields)"))
			b.WriteString("\n")
		}
		for i, idx := range vis {
			e := f.entries[idx]
			line := nameStyle.Render(e.name) + ": " + typeStyle.Render(summary(e.value))
			if i == f.selected {
				b.WriteString(selectedStyle.Render("> " + e.name + ": " + summary(e.value)))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.state == stateFilter || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • esc back • / filter • q quit"))

	case stateShowValue:
		f := m.top()
		b.WriteString(valueStyle.Render(detail(f.value)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

func runInteractive(filename string, dec decoder, opts options) error {
	p := tea.NewProgram(newInteractiveModel(filename, dec, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
