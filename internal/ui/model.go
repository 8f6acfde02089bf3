// ABOUTME: Bubbletea model for the level meter screen
// ABOUTME: Holds the latest frame and renders one horizontal bar per channel
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Resonate-Protocol/vumeter/internal/render"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/level"
)

const (
	defaultWidth = 80
	labelWidth   = 3
	readoutWidth = 10
)

// Bar zones as a percentage of the full scale
const (
	warnPercent = 75
	hotPercent  = 90
)

var eighths = []string{"", "▏", "▎", "▍", "▌", "▋", "▊", "▉"}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	readoutStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	hotStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	trackStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
)

type frameMsg render.Frame

// readyMsg is delivered once the program has taken over the terminal
type readyMsg struct{}

// model is the bubbletea model for the meter screen
type model struct {
	frame    render.Frame
	width    int
	quitting bool

	events chan<- render.Event
	ready  chan<- struct{}
}

func newModel(events chan<- render.Event, ready chan<- struct{}) model {
	return model{events: events, ready: ready}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg { return readyMsg{} }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			// The render loop picks this up on its next poll
			select {
			case m.events <- render.EventQuit:
			default:
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case frameMsg:
		m.frame = render.Frame(msg)

	case readyMsg:
		if m.ready != nil {
			close(m.ready)
			m.ready = nil
		}
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	barWidth := width - labelWidth - readoutWidth - 2
	if barWidth < 1 {
		barWidth = 1
	}

	var b strings.Builder
	for _, g := range m.frame.Groups {
		if g.Title != "" {
			b.WriteString(titleStyle.Render(g.Title))
			b.WriteString("\n")
		}
		for _, bar := range g.Bars {
			b.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", labelWidth, bar.Label)))
			b.WriteString(" ")
			b.WriteString(renderBar(bar.Value, barWidth))
			b.WriteString(" ")
			b.WriteString(readoutStyle.Render(fmt.Sprintf("%*s", readoutWidth-1, level.Format(bar.Level))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("Press 'q' or Esc to quit"))

	return b.String()
}

// renderBar draws a bar width cells wide filled to percent, with eighth-cell resolution.
// The filled part is coloured by zone: green, then yellow, then red near full scale.
func renderBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	eighthsTotal := int(percent / 100 * float64(width*8))
	full := eighthsTotal / 8
	partial := eighths[eighthsTotal%8]

	var b strings.Builder
	warnCell := width * warnPercent / 100
	hotCell := width * hotPercent / 100
	for i := 0; i < full; i++ {
		b.WriteString(zoneStyle(i, warnCell, hotCell).Render("█"))
	}
	used := full
	if partial != "" {
		b.WriteString(zoneStyle(full, warnCell, hotCell).Render(partial))
		used++
	}
	if used < width {
		b.WriteString(trackStyle.Render(strings.Repeat("░", width-used)))
	}
	return b.String()
}

func zoneStyle(cell, warnCell, hotCell int) lipgloss.Style {
	switch {
	case cell >= hotCell:
		return hotStyle
	case cell >= warnCell:
		return warnStyle
	default:
		return okStyle
	}
}
