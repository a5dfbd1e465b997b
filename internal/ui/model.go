// ABOUTME: Bubbletea model for the live renderer status display
// ABOUTME: Polls engine and spatializer stats on a tick and handles key controls
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/binaural"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/engine"
)

// Status is everything the display shows
type Status struct {
	Engine   engine.Stats
	Spatial  binaural.Stats
	Filter   string
	Strategy string
	Input    string
	// PoseSessions is the number of connected trackers; -1 when the pose
	// server is disabled.
	PoseSessions int
	PoseAccepted uint64
}

// Controls are the actions keys trigger. Nil fields disable their keys.
type Controls struct {
	// Nudge moves the manual target by the given degrees.
	Nudge func(dAzimuth, dElevation float64)
	// ResetPosition returns the target to straight ahead.
	ResetPosition func()
	// Resize grows or shrinks the buffer by one bounded step.
	Resize func(grow bool) error
}

// StatusMsg delivers a fresh snapshot
type StatusMsg Status

type tickMsg time.Time

// Model represents the TUI state
type Model struct {
	title    string
	poll     func() Status
	controls Controls
	interval time.Duration

	status   Status
	lastErr  string
	quitting bool

	width  int
	height int
}

// NewModel creates a model that calls poll every interval
func NewModel(title string, poll func() Status, controls Controls, interval time.Duration) Model {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return Model{
		title:    title,
		poll:     poll,
		controls: controls,
		interval: interval,
	}
}

// Init starts the refresh tick
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		if m.poll != nil {
			m.status = m.poll()
		}
		return m, m.tick()
	case StatusMsg:
		m.status = Status(msg)
	}
	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "left":
		m.nudge(-15, 0)
	case "right":
		m.nudge(15, 0)
	case "up":
		m.nudge(0, 10)
	case "down":
		m.nudge(0, -10)
	case "c":
		if m.controls.ResetPosition != nil {
			m.controls.ResetPosition()
		}
	case "+", "=":
		m.resize(true)
	case "-":
		m.resize(false)
	}
	return m, nil
}

func (m *Model) nudge(dAz, dEl float64) {
	if m.controls.Nudge != nil {
		m.controls.Nudge(dAz, dEl)
	}
}

func (m *Model) resize(grow bool) {
	if m.controls.Resize == nil {
		return
	}
	if err := m.controls.Resize(grow); err != nil {
		m.lastErr = err.Error()
		return
	}
	m.lastErr = ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))
	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))
	errStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
	helpStyle = lipgloss.NewStyle().Faint(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping engine...\n"
	}

	st := m.status
	es := st.Engine
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(headerStyle.Render(fmt.Sprintf("%-11s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	row("Position", fmt.Sprintf("az %6.1f°  el %5.1f°  dist %.2f m",
		st.Spatial.Azimuth, st.Spatial.Elevation, st.Spatial.Distance))
	row("Filter", fmt.Sprintf("#%d %s", st.Spatial.ActiveFilterIndex, st.Filter))
	if st.Input != "" {
		row("Input", st.Input)
	}
	if st.PoseSessions >= 0 {
		row("Trackers", fmt.Sprintf("%d connected, %d poses", st.PoseSessions, st.PoseAccepted))
	}
	b.WriteString("\n")

	row("Engine", fmt.Sprintf("%s on %s", es.State, es.Backend))
	row("Stream", fmt.Sprintf("%d Hz (processing %d Hz), %s", es.SampleRate, es.ProcessingRate, st.Strategy))
	row("Buffer", fmt.Sprintf("%d frames (%s)", es.BufferSize, es.Latency().Round(100*time.Microsecond)))
	row("Load", fmt.Sprintf("%s  mean %s  max %s",
		renderBar(es.CPULoad, 20), es.MeanCallback.Round(time.Microsecond), es.MaxCallback.Round(time.Microsecond)))
	row("Levels", fmt.Sprintf("in %s  out %s", renderBar(float64(es.PeakInput), 10), renderBar(float64(es.PeakOutput), 10)))

	xruns := fmt.Sprintf("%d underruns  %d overruns", es.Underruns, es.Overruns)
	if es.Underruns+es.Overruns > 0 {
		xruns = warnStyle.Render(xruns)
	}
	row("Xruns", xruns)
	row("Restarts", fmt.Sprintf("%d (buffer changes %d)", es.Restarts, es.BufferChanges))

	recovery := es.Recovery.String()
	switch es.Recovery {
	case engine.RecoveryRecovering:
		recovery = warnStyle.Render(recovery)
	case engine.RecoveryFailed:
		recovery = errStyle.Render(recovery)
	}
	row("Recovery", recovery)

	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("←/→ azimuth  ↑/↓ elevation  c centre  +/- buffer  q quit"))
	b.WriteString("\n")
	return b.String()
}

// renderBar draws a 0..1 value as a bar of width cells
func renderBar(value float64, width int) string {
	value = max(0, min(value, 1))
	filled := int(value*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
