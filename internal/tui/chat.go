package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/parley-go/internal/client"
	"github.com/raphaelgruber/parley-go/internal/models"
)

// requestTimeout bounds one send round trip. Agent requests can run
// several inference rounds.
const requestTimeout = 5 * time.Minute

// modes the user can cycle through.
var modes = []string{"none", "internet", "auto"}

// Theme holds the color scheme for the chat display.
type Theme struct {
	User      lipgloss.Color
	Assistant lipgloss.Color
	Tool      lipgloss.Color
	Error     lipgloss.Color
	Hint      lipgloss.Color
}

var defaultTheme = Theme{
	User:      lipgloss.Color("#5FAFD7"), // light blue
	Assistant: lipgloss.Color("#D7D7D7"), // light gray
	Tool:      lipgloss.Color("#00D787"), // green
	Error:     lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t Theme) assistantStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Assistant)
}

func (t Theme) toolStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Tool)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// conversationsMsg carries the refreshed conversation list.
type conversationsMsg struct {
	conversations []models.ConversationView
	err           error
}

// historyMsg carries a fetched conversation history.
type historyMsg struct {
	conversationID string
	messages       []models.MessageView
	err            error
}

// sendResultMsg carries the outcome of one in-flight send.
type sendResultMsg struct {
	pending Pending
	text    string
	resp    *models.ChatResponse
	err     error
}

// chatModel is the bubbletea model for the chat view.
type chatModel struct {
	api     *client.Client
	session Session
	input   textinput.Model
	theme   Theme

	modeIdx int
	width   int
	height  int
	err     error
}

func newChatModel(api *client.Client) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 4096

	return chatModel{
		api:     api,
		session: NewSession(nil),
		input:   ti,
		theme:   defaultTheme,
	}
}

func (m chatModel) mode() string {
	return modes[m.modeIdx]
}

// Init starts with the conversation list and a focused input.
func (m chatModel) Init() tea.Cmd {
	return tea.Batch(m.input.Focus(), m.loadConversations())
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "enter":
			return m.submit()

		case "ctrl+n":
			m.session = m.session.StartNew()
			m.err = nil
			return m, nil

		case "ctrl+t":
			m.modeIdx = (m.modeIdx + 1) % len(modes)
			return m, nil

		case "ctrl+p":
			return m.step(-1)

		case "ctrl+o":
			return m.step(1)
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case conversationsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = m.session.SetConversations(msg.conversations)
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = m.session.SetHistory(msg.conversationID, msg.messages)
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			// Roll back the optimistic message and put the text back so
			// nothing typed is lost.
			m.session = m.session.ApplySendError(msg.pending)
			m.input.SetValue(msg.text)
			m.err = msg.err
			return m, nil
		}
		m.session = m.session.ApplySendResult(msg.pending, msg.resp)
		return m, m.loadConversations()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit issues the send for the typed text.
func (m chatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.session.HasPending() {
		return m, nil
	}

	var p Pending
	m.session, p = m.session.StartSend(text, m.mode())
	m.input.SetValue("")
	m.err = nil
	return m, m.send(p, text)
}

// step moves to the previous or next conversation in the list.
func (m chatModel) step(delta int) (tea.Model, tea.Cmd) {
	convs := m.session.Conversations
	if len(convs) == 0 {
		return m, nil
	}

	idx := -1
	for i, conv := range convs {
		if conv.ID == m.session.Current {
			idx = i
			break
		}
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(convs) {
		idx = len(convs) - 1
	}

	target := convs[idx].ID
	if target == m.session.Current {
		return m, nil
	}
	m.session = m.session.SwitchTo(target)
	m.err = nil

	if m.session.History(target) == nil {
		return m, m.loadHistory(target)
	}
	return m, nil
}

func (m chatModel) View() tea.View {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	for _, msg := range m.session.Messages() {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	if m.session.HasPending() {
		b.WriteString(m.theme.hintStyle().Render("thinking...") + "\n")
	}
	if m.err != nil {
		b.WriteString(m.theme.errorStyle().Render("error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.hintStyle().Render(
		"enter send · ctrl+t mode · ctrl+n new · ctrl+p/ctrl+o switch · ctrl+c quit"))

	return tea.NewView(b.String())
}

func (m chatModel) renderHeader() string {
	title := "new conversation"
	for _, conv := range m.session.Conversations {
		if conv.ID == m.session.Current {
			title = conv.Title
			break
		}
	}
	return fmt.Sprintf("%s  %s",
		m.theme.userStyle().Render(title),
		m.theme.toolStyle().Render("["+m.mode()+"]"))
}

func (m chatModel) renderMessage(msg models.MessageView) string {
	switch msg.Role {
	case models.RoleUser:
		return m.theme.userStyle().Render("you: ") + msg.Content
	case models.RoleAssistant:
		tag := ""
		if msg.ToolUsed != "" && msg.ToolUsed != "none" {
			tag = m.theme.toolStyle().Render(" ["+msg.ToolUsed+"]")
		}
		return m.theme.assistantStyle().Render("assistant"+":") + tag + " " + msg.Content
	default:
		return msg.Content
	}
}

// send runs the request off the update loop.
func (m chatModel) send(p Pending, text string) tea.Cmd {
	conversationID := p.ConversationID
	mode := m.mode()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		resp, err := m.api.Send(ctx, models.ChatRequest{
			Message:        text,
			ConversationID: conversationID,
			Mode:           mode,
		})
		return sendResultMsg{pending: p, text: text, resp: resp, err: err}
	}
}

func (m chatModel) loadConversations() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		convs, err := m.api.ListConversations(ctx)
		return conversationsMsg{conversations: convs, err: err}
	}
}

func (m chatModel) loadHistory(conversationID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msgs, err := m.api.ListMessages(ctx, conversationID)
		return historyMsg{conversationID: conversationID, messages: msgs, err: err}
	}
}

// Run starts the interactive chat UI.
func Run(api *client.Client) error {
	p := tea.NewProgram(newChatModel(api))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
