package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"dory/internal/chat"
	"dory/internal/models"
	"dory/internal/util"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	Turn(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error)
	CurrentModel() string
}

type entry struct {
	role  string
	text  string
	query string
	res   *chat.TurnResult
}

type turnMsg struct {
	query string
	res   chat.TurnResult
	err   error
}

// Model is the Bubble Tea model for the terminal chat client.
type Model struct {
	service   ChatPort
	sessionID string
	timeout   time.Duration
	input     textinput.Model
	viewport  viewport.Model
	history   []entry
	status    string
	waiting   bool
	ready     bool
}

func New(service ChatPort, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask Dory about digital engineering or the Summit"
	ti.Focus()
	ti.CharLimit = 2000
	return Model{
		service:   service,
		sessionID: uuid.NewString(),
		timeout:   timeout,
		input:     ti,
		viewport:  viewport.New(0, 0),
		status:    "Model " + service.CurrentModel() + ". Enter to send, Ctrl+C to quit.",
	}
}

func (m Model) SessionID() string { return m.sessionID }

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		// header + status lines
		reserved := 2 + ih + 1
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case turnMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + userMessage(msg.err)
			m.history = append(m.history, entry{role: "dory", text: chat.Apology})
		} else {
			res := msg.res
			m.sessionID = res.SessionID
			m.history = append(m.history, entry{role: "dory", text: res.Answer, query: msg.query, res: &res})
			m.status = statusLine(res)
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.waiting = true
			m.status = "Thinking..."
			m.history = append(m.history, entry{role: "you", text: text})
			m.refresh()
			return m, m.send(text)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send runs the turn off the UI goroutine.
func (m Model) send(text string) tea.Cmd {
	service, sessionID, timeout := m.service, m.sessionID, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		res, err := service.Turn(ctx, chat.TurnRequest{SessionID: sessionID, UserText: text})
		return turnMsg{query: text, res: res, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Dory")
	status := statusStyle.Render(m.status)
	return header + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" + inputStyle.Render(m.input.View()) + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return hintStyle.Render("No messages yet.")
	}
	width := max(20, m.viewport.Width-2)
	var b strings.Builder
	for i, e := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if e.role == "you" {
			b.WriteString(userStyle.Render("You"))
		} else {
			b.WriteString(doryStyle.Render("Dory"))
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(e.text))
		if e.res != nil && len(e.res.Hits) > 0 {
			for _, h := range e.res.Hits {
				b.WriteString("\n")
				b.WriteString(hintStyle.Render(fmt.Sprintf("  [%.2f] %s: %s", h.Score, h.Meta.SourceName, util.Snippet(h.Text, e.query, 90))))
			}
		}
	}
	return b.String()
}

func statusLine(res chat.TurnResult) string {
	parts := []string{"source=" + res.Source}
	if res.Domain != models.DomainNone {
		parts = append(parts, "domain="+string(res.Domain))
	}
	if res.UsedRAG {
		parts = append(parts, fmt.Sprintf("hits=%d", len(res.Hits)))
	}
	if res.Model != "" {
		parts = append(parts, "model="+res.Model)
	}
	return strings.Join(parts, "  ")
}

func userMessage(err error) string {
	if chat.IsUserError(err) {
		return "message text is required"
	}
	return "request failed, check the logs"
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	doryStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
)
