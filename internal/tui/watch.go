// Package tui implements the live session-log viewer behind the watch
// command. It reads the whole log file each tick and shows the trailing
// window, color-coded by level token.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/taskwarden/internal/logsink"
)

const refreshInterval = time.Second

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type tickMsg time.Time

type linesMsg struct {
	lines []string
	err   error
}

// Model is the bubbletea model for the watch view.
type Model struct {
	path     string
	maxLines int
	viewport viewport.Model
	ready    bool
	lastErr  error
}

// NewModel creates a watch model tailing maxLines of the log at path.
func NewModel(path string, maxLines int) Model {
	if maxLines <= 0 {
		maxLines = 200
	}
	return Model{path: path, maxLines: maxLines}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(readLog(m.path, m.maxLines), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func readLog(path string, n int) tea.Cmd {
	return func() tea.Msg {
		sink, err := logsink.Open(path)
		if err != nil {
			return linesMsg{err: err}
		}
		lines, err := sink.Tail(n)
		return linesMsg{lines: lines, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		headerHeight := 2
		footerHeight := 1
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}

	case tickMsg:
		return m, tea.Batch(readLog(m.path, m.maxLines), tick())

	case linesMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			atBottom := m.viewport.AtBottom()
			m.viewport.SetContent(Colorize(msg.lines))
			if atBottom {
				m.viewport.GotoBottom()
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	header := titleStyle.Render("taskwarden session log") + " " + helpStyle.Render(m.path)
	if m.lastErr != nil {
		header += "\n" + errorStyle.Render(fmt.Sprintf("read error: %v", m.lastErr))
	} else {
		header += "\n"
	}
	footer := helpStyle.Render("q: quit · arrows/pgup/pgdn: scroll")
	return header + "\n" + m.viewport.View() + "\n" + footer
}

// Colorize styles each line by its level token.
func Colorize(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(styleFor(LevelOf(line)).Render(line))
		b.WriteByte('\n')
	}
	return b.String()
}

// LevelOf extracts the [LEVEL] token from a session log line. Lines that do
// not match the format report INFO.
func LevelOf(line string) string {
	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		if strings.Contains(line, "["+level+"]") {
			return level
		}
	}
	return "INFO"
}

func styleFor(level string) lipgloss.Style {
	switch level {
	case "DEBUG":
		return debugStyle
	case "WARN":
		return warnStyle
	case "ERROR":
		return errorStyle
	default:
		return infoStyle
	}
}

// Run starts the watch UI and blocks until the user quits.
func Run(path string, maxLines int) error {
	p := tea.NewProgram(NewModel(path, maxLines), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch ui: %w", err)
	}
	return nil
}
