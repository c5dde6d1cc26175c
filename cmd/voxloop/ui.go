package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/voxloop/voxloop-core/core"
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stateStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	promptStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	replyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	helpStyle       = lipgloss.NewStyle().Faint(true)
	statusBarStyle  = lipgloss.NewStyle().Padding(0, 1)
	transcriptStyle = lipgloss.NewStyle().Padding(0, 2)
)

type model struct {
	orchestrator *orchestration.Orchestrator
	states       <-chan orchestration.ConversationState

	spinner  spinner.Model
	state    orchestration.ConversationState
	width    int
	quitting bool
}

func newModel(orchestrator *orchestration.Orchestrator, states <-chan orchestration.ConversationState) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	return model{
		orchestrator: orchestrator,
		states:       states,
		spinner:      s,
		state:        orchestration.StateIdle,
		width:        80,
	}
}

type stateMsg orchestration.ConversationState

func (m model) listenStates() tea.Cmd {
	return func() tea.Msg {
		state, ok := <-m.states
		if !ok {
			return nil
		}
		return stateMsg(state)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenStates())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key, ok := translateKey(msg); ok {
			m.orchestrator.HandleKey(orchestration.KeyEvent{Key: key, Time: time.Now()})
			if key == orchestration.KeyQuit {
				m.quitting = true
				return m, tea.Quit
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case stateMsg:
		m.state = orchestration.ConversationState(msg)
		if m.state == orchestration.StateShutdown {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.listenStates()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func translateKey(msg tea.KeyMsg) (orchestration.Key, bool) {
	switch msg.Type {
	case tea.KeySpace:
		return orchestration.KeySpace, true
	case tea.KeyEsc:
		return orchestration.KeyEscape, true
	case tea.KeyUp:
		return orchestration.KeyUp, true
	case tea.KeyDown:
		return orchestration.KeyDown, true
	case tea.KeyLeft:
		return orchestration.KeyLeft, true
	case tea.KeyRight:
		return orchestration.KeyRight, true
	case tea.KeyCtrlC:
		return orchestration.KeyQuit, true
	case tea.KeyRunes:
		if len(msg.Runes) == 1 && msg.Runes[0] == 'q' {
			return orchestration.KeyQuit, true
		}
	}
	return orchestration.KeyNone, false
}

func (m model) View() string {
	if m.quitting {
		return "bye\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("voxloop"))
	b.WriteString("\n\n")

	status := stateStyle.Render(m.state.String())
	if m.stateBusy() {
		status = m.spinner.View() + " " + status
	}
	voice := m.orchestrator.Voice()
	if voice == "" {
		voice = "default"
	}
	b.WriteString(statusBarStyle.Render(fmt.Sprintf("%s  voice: %s  speed: %.1fx",
		status, voice, m.orchestrator.Speed())))
	b.WriteString("\n\n")

	history := m.orchestrator.History()
	start := 0
	if len(history) > 4 {
		start = len(history) - 4
	}
	for _, exchange := range history[start:] {
		b.WriteString(transcriptStyle.Render(
			promptStyle.Render("you: ") + wrap(exchange.Prompt, m.width-10)))
		b.WriteString("\n")
		b.WriteString(transcriptStyle.Render(
			replyStyle.Render("agent: ") + wrap(exchange.Reply, m.width-10)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space pause · esc stop · esc esc interrupt · ←/→ voice · ↑/↓ speed · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m model) stateBusy() bool {
	switch m.state {
	case orchestration.StateTranscribing, orchestration.StateGenerating, orchestration.StateSynthesizing:
		return true
	}
	return false
}

func wrap(text string, width int) string {
	if width < 20 {
		width = 20
	}
	return wordwrap.String(text, width)
}
