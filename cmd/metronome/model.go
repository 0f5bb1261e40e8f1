package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/rehearsal-go"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	tempoStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	beatStyle     = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238"))
	activeStyle   = beatStyle.BorderForeground(lipgloss.Color("86")).Foreground(lipgloss.Color("86")).Bold(true)
	downbeatStyle = beatStyle.BorderForeground(lipgloss.Color("205")).Foreground(lipgloss.Color("205")).Bold(true)
)

type beatMsg rehearsal.Beat

type model struct {
	met     *rehearsal.Metronome
	engine  *rehearsal.Engine
	beats   <-chan rehearsal.Beat
	current int // -1 when stopped
	volume  float64 // restored on unmute
	err     string
}

func newModel(met *rehearsal.Metronome, engine *rehearsal.Engine, beats <-chan rehearsal.Beat) model {
	return model{met: met, engine: engine, beats: beats, current: -1, volume: engine.Volume()}
}

func listenForBeats(ch <-chan rehearsal.Beat) tea.Cmd {
	return func() tea.Msg {
		return beatMsg(<-ch)
	}
}

func (m model) Init() tea.Cmd {
	return listenForBeats(m.beats)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.err = ""
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.met.Stop()
			return m, tea.Quit

		case " ", "p":
			if m.met.Running() {
				m.met.Stop()
				m.current = -1
			} else if err := m.met.Start(); err != nil {
				m.err = err.Error()
			}

		case "+", "=", "right":
			m.nudgeTempo(1)
		case "-", "_", "left":
			m.nudgeTempo(-1)
		case "up":
			m.nudgeTempo(10)
		case "down":
			m.nudgeTempo(-10)

		case "]":
			m.setBeats(m.met.BeatsPerBar() + 1)
		case "[":
			m.setBeats(m.met.BeatsPerBar() - 1)

		case "m":
			if v := m.engine.Volume(); v > 0 {
				m.volume = v
				m.engine.SetVolume(0)
			} else if m.volume > 0 {
				m.engine.SetVolume(m.volume)
			}
		}

	case beatMsg:
		if m.met.Running() {
			m.current = msg.Index
		}
		return m, listenForBeats(m.beats)
	}
	return m, nil
}

func (m *model) nudgeTempo(delta float64) {
	if err := m.met.SetTempo(m.met.Tempo() + delta); err != nil {
		m.err = err.Error()
	}
}

func (m *model) setBeats(n int) {
	if err := m.met.SetBeatsPerBar(n); err != nil {
		m.err = err.Error()
		return
	}
	if m.current >= n {
		m.current = -1
	}
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("metronome"))
	b.WriteString("\n\n")

	state := "stopped"
	if m.met.Running() {
		state = "playing"
	}
	b.WriteString(tempoStyle.Render(fmt.Sprintf("%3.0f BPM", m.met.Tempo())))
	b.WriteString(dimStyle.Render(fmt.Sprintf("   %d/4   %s", m.met.BeatsPerBar(), state)))
	if m.engine.Volume() == 0 {
		b.WriteString(dimStyle.Render("   muted"))
	}
	b.WriteString("\n\n")

	cells := make([]string, m.met.BeatsPerBar())
	for i := range cells {
		style := beatStyle
		if i == m.current {
			style = activeStyle
			if i == 0 {
				style = downbeatStyle
			}
		}
		cells[i] = style.Render(fmt.Sprintf("%d", i+1))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	b.WriteString("\n\n")

	if m.err != "" {
		b.WriteString(errStyle.Render(m.err))
		b.WriteString("\n")
	}
	stats := m.engine.Stats()
	if stats.Late > 0 || stats.Dropped > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("late %d  dropped %d", stats.Late, stats.Dropped)))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("space start/stop  ←/→ ±1  ↑/↓ ±10  [/] beats  m mute  q quit"))
	b.WriteString("\n")
	return b.String()
}
