package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle  = lipgloss.NewStyle().Faint(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type doneMsg struct {
	details []string
	err     error
}

type tickMsg time.Time

type model struct {
	title   string
	start   time.Time
	frame   int
	done    bool
	details []string
	err     error
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.err = context.Canceled
			m.done = true
			return m, tea.Quit
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, tick()
	case doneMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	if !m.done {
		frame := spinnerFrames[m.frame%len(spinnerFrames)]
		b.WriteString(fmt.Sprintf("%s running for %s\n",
			spinnerStyle.Render(frame),
			time.Since(m.start).Round(time.Second)))
		return b.String()
	}
	for _, line := range m.details {
		b.WriteString(detailStyle.Render("  - " + line))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(failStyle.Render("✗ " + m.err.Error()))
	} else {
		b.WriteString(okStyle.Render("✓ done"))
	}
	b.WriteString("\n")
	return b.String()
}

// Run executes fn under a terminal spinner and returns its details and
// error after the UI exits. Quitting the UI cancels fn's context.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	p := tea.NewProgram(model{title: title, start: time.Now()})
	go func() {
		details, err := fn(ctx)
		p.Send(doneMsg{details: details, err: err})
	}()

	out, err := p.Run()
	if err != nil {
		return nil, err
	}
	final, ok := out.(model)
	if !ok {
		return nil, fmt.Errorf("unexpected model type %T", out)
	}
	if final.err == context.Canceled {
		cancel()
	}
	return final.details, final.err
}
