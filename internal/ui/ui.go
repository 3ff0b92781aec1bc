// Package ui renders session activity for the CLI: connection state, values
// as they arrive or depart, and errors.
package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rescp17/peerchannel/pkg/serialize"
)

// Role selects which side's view the model renders.
type Role int

const (
	Receiver Role = iota
	Sender
)

// Messages fed into the model from session callbacks.
type (
	// SessionOpenMsg fires when the data channel becomes ready.
	SessionOpenMsg struct{ Mode serialize.Mode }
	// DataMsg carries one fully reconstructed inbound value.
	DataMsg struct{ Value any }
	// SentMsg reports one outbound value handed to the session.
	SentMsg struct{ Summary string }
	// ErrMsg carries a session error; the session itself stays usable.
	ErrMsg struct{ Err error }
	// ClosedMsg fires when the session reaches its terminal state.
	ClosedMsg struct{}
)

type uiState int

const (
	connecting uiState = iota
	open
	done
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// Model is the bubbletea model for both CLI roles.
type Model struct {
	role    Role
	target  string
	spinner spinner.Model
	events  <-chan tea.Msg
	state   uiState
	mode    serialize.Mode
	log     []string
}

// NewModel builds a model that drains session events from events.
func NewModel(role Role, target string, events <-chan tea.Msg) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		role:    role,
		target:  target,
		spinner: s,
		events:  events,
		state:   connecting,
	}
}

func (m Model) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.events
		if !ok {
			return ClosedMsg{}
		}
		return msg
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvents())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (m.state == done && msg.Type == tea.KeyEnter) {
			return m, tea.Quit
		}
		return m, nil

	case SessionOpenMsg:
		m.state = open
		m.mode = msg.Mode
		m.log = append(m.log, okStyle.Render("channel open")+dimStyle.Render(" mode="+msg.Mode.String()))
		return m, m.listenForEvents()

	case SentMsg:
		m.log = append(m.log, "→ "+msg.Summary)
		return m, m.listenForEvents()

	case DataMsg:
		m.log = append(m.log, "← "+summarize(msg.Value))
		return m, m.listenForEvents()

	case ErrMsg:
		m.log = append(m.log, errStyle.Render(fmt.Sprintf("error: %v", msg.Err)))
		return m, m.listenForEvents()

	case ClosedMsg:
		m.state = done
		m.log = append(m.log, dimStyle.Render("session closed"))
		return m, nil
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var header string
	switch m.state {
	case connecting:
		if m.role == Sender {
			header = fmt.Sprintf("%s Connecting to %s...", m.spinner.View(), m.target)
		} else {
			header = fmt.Sprintf("%s Awaiting connection on %s...", m.spinner.View(), m.target)
		}
	case open:
		header = titleStyle.Render("Session open")
	case done:
		header = titleStyle.Render("Session closed") + dimStyle.Render("  press enter to exit")
	}

	s := "\n " + header + "\n\n"
	for _, line := range m.log {
		s += "  " + line + "\n"
	}
	s += dimStyle.Render("\n  ctrl+c to quit\n")
	return s
}

// summarize renders an inbound value for the log without dumping large
// payloads to the terminal.
func summarize(value any) string {
	switch v := value.(type) {
	case []byte:
		if len(v) <= 64 {
			return fmt.Sprintf("%q", v)
		}
		return fmt.Sprintf("%d bytes", len(v))
	case string:
		return fmt.Sprintf("%q", v)
	case serialize.File:
		return fmt.Sprintf("file %q (%s, %d bytes)", v.Name, v.MIME, len(v.Data))
	case serialize.Blob:
		return fmt.Sprintf("blob (%s, %d bytes)", v.MIME, len(v.Data))
	default:
		return fmt.Sprintf("%v", v)
	}
}
