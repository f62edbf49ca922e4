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
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type tickMsg time.Time

type doneMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	frame   int
	done    bool
	details []string
	err     error
	cancel  context.CancelFunc
}

// Run executes fn behind a terminal spinner and returns its details and
// error once it settles. Ctrl-C cancels the context handed to fn.
func Run(title string, fn func(ctx context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	m := model{title: title, cancel: cancel}
	p := tea.NewProgram(m)
	go func() {
		details, err := fn(ctx)
		p.Send(doneMsg{details: details, err: err})
	}()

	out, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("run terminal ui: %w", err)
	}
	final, ok := out.(model)
	if !ok {
		return nil, fmt.Errorf("unexpected terminal ui state")
	}
	return final.details, final.err
}

func (m model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case doneMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancel()
			m.done = true
			m.err = context.Canceled
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	if !m.done {
		fmt.Fprintf(&b, "%s %s\n", spinnerFrames[m.frame], titleStyle.Render(m.title))
		return b.String()
	}
	if m.err != nil {
		fmt.Fprintf(&b, "%s %s\n", failStyle.Render("✗"), titleStyle.Render(m.title))
	} else {
		fmt.Fprintf(&b, "%s %s\n", okStyle.Render("✓"), titleStyle.Render(m.title))
	}
	for _, d := range m.details {
		fmt.Fprintf(&b, "  %s\n", detailStyle.Render(d))
	}
	if m.err != nil {
		fmt.Fprintf(&b, "  %s\n", failStyle.Render(m.err.Error()))
	}
	return b.String()
}
