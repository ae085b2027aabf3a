// Package tui is a terminal dashboard for a running session. It follows the
// state WebSocket and renders the playback rate, pace and the feedback text
// with its typewriter reveal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stridebeat/internal/session"
)

// Model is the root Bubble Tea model of the dashboard.
type Model struct {
	width  int
	height int

	url       string
	connected bool
	lastErr   error

	snap session.Snapshot

	spinner spinner.Model
	bar     progress.Model
}

// New creates a dashboard for the state socket at url.
func New(url string) Model {
	return Model{
		url: url,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(ColorAccent)),
		),
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		snap: session.Snapshot{MaxRate: 1},
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if w := msg.Width - 20; w > 10 {
			m.bar.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ConnectedMsg:
		m.connected = true
		m.lastErr = nil

	case DisconnectedMsg:
		m.connected = false
		m.lastErr = msg.Err

	case StateInitMsg:
		m.snap = msg.Snapshot
		if m.snap.MaxRate <= 0 {
			m.snap.MaxRate = 1
		}

	case PhaseMsg:
		m.snap.Phase = msg.Phase
		m.snap.SensorUnavailable = msg.SensorUnavailable
		m.snap.AudioReady = msg.AudioReady

	case PlaybackStartedMsg:
		m.snap.IsPlaying = true
		m.snap.CurrentRate = msg.Rate

	case RateMsg:
		m.snap.CurrentRate = msg.CurrentRate
		m.snap.DesiredRate = msg.DesiredRate
		m.snap.Ratio = msg.Ratio

	case TextMsg:
		m.snap.Text = msg.Text
		m.snap.Visible = ""

	case DisplayMsg:
		m.snap.Visible = msg.Visible
		m.snap.Blinker = msg.Blinker
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	title := StyleTitle.Render("STRIDEBEAT")
	if m.snap.SessionID != "" {
		title += StyleHelp.Render("session " + shortID(m.snap.SessionID))
	}
	b.WriteString(title + "  " + m.phaseBadge() + "\n\n")

	if !m.connected {
		b.WriteString(m.spinner.View() + " connecting to " + m.url + "\n")
		if m.lastErr != nil {
			b.WriteString(StyleError.Render(m.lastErr.Error()) + "\n")
		}
		b.WriteString("\n" + StyleHelp.Render("q quit"))
		return b.String()
	}

	b.WriteString(row("rate", m.bar.ViewAs(ratePercent(m.snap.CurrentRate, m.snap.MaxRate))+
		StyleValue.Render(fmt.Sprintf("  %.3fx -> %.3fx", m.snap.CurrentRate, m.snap.DesiredRate))))
	b.WriteString(row("pace", StyleValue.Render(fmt.Sprintf("%.2f steps/s", m.snap.Ratio))))
	b.WriteString(row("audio", StyleValue.Render(audioLabel(m.snap))))

	feedback := m.snap.Visible
	if m.snap.Blinker {
		feedback += StyleCursor.Render("_")
	}
	b.WriteString(StylePanel.Render(StyleFeedback.Render(feedback)) + "\n\n")

	b.WriteString(StyleHelp.Render("q quit"))
	return b.String()
}

func (m Model) phaseBadge() string {
	phase := m.snap.Phase
	if phase == "" {
		phase = "unknown"
	}
	label := "[" + strings.ToUpper(phase) + "]"
	if m.snap.SensorUnavailable {
		return StylePhaseIdle.Render("[NO PEDOMETER]")
	}
	if phase == "active" {
		return StylePhaseActive.Render(label)
	}
	return StylePhaseIdle.Render(label)
}

func row(label, value string) string {
	return StyleLabel.Render(label) + value + "\n"
}

func ratePercent(rate, maxRate float64) float64 {
	if maxRate <= 0 {
		return 0
	}
	p := rate / maxRate
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func audioLabel(s session.Snapshot) string {
	switch {
	case !s.AudioReady && s.Phase == "active":
		return "unavailable (feedback only)"
	case s.IsPlaying:
		return "playing"
	default:
		return "waiting for first steps"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
