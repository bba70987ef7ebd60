// Package tui is the terminal front end of the assistant.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/koscakluka/siva/core"
	events "github.com/koscakluka/siva/core/events"
	"github.com/koscakluka/siva/core/llms"
)

const noticeDuration = 5 * time.Second

// Assistant is the part of the orchestrator the interface drives.
type Assistant interface {
	SendMessage(ctx context.Context, text string, fromVoice bool) (string, error)
	IsLoading() bool
	Messages() []llms.Message
	UserName() string
	SetUserName(name string)

	IsSpeechInputSupported() bool
	IsSpeechOutputSupported() bool
	StartListening(ctx context.Context) (string, error)
	StopListening()
	IsListening() bool
	Speak(ctx context.Context, text string) (string, error)
	StopSpeaking()
	IsSpeaking() bool

	ActivateVoice() error
	DeactivateVoice()
	VoiceState() orchestration.VoiceState
}

// EventMsg carries an orchestrator event into the update loop.
type EventMsg struct {
	Event events.Event
}

type replyMsg struct {
	err error
}

type noticeExpiredMsg struct {
	id int
}

type inputMode int

const (
	modeMessage inputMode = iota
	modeName
)

type Model struct {
	ctx       context.Context
	assistant Assistant
	keys      KeyMap

	viewport viewport.Model
	input    textinput.Model
	mode     inputMode

	width, height int

	notice   string
	noticeID int
}

func NewModel(ctx context.Context, assistant Assistant) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Focus()

	// Typing goes to the input, only paging keys scroll the conversation.
	conversation := viewport.New(0, 0)
	conversation.KeyMap = viewport.KeyMap{
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
	}

	m := &Model{
		ctx:       ctx,
		assistant: assistant,
		keys:      DefaultKeyMap,
		viewport:  conversation,
		input:     input,
	}
	m.refresh()
	return m
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case m.mode == modeName && key.Matches(msg, m.keys.Cancel):
			m.leaveNameMode()
			return m, nil
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			return m, m.submit()
		case key.Matches(msg, m.keys.ToggleVoice):
			return m, m.toggleVoice()
		case key.Matches(msg, m.keys.Dictate):
			return m, m.toggleDictation()
		case key.Matches(msg, m.keys.Speak):
			return m, m.toggleSpeaking()
		case key.Matches(msg, m.keys.SetName):
			m.mode = modeName
			m.input.Reset()
			m.input.Placeholder = "What should I call you?"
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

	case EventMsg:
		cmds = append(cmds, m.handleEvent(msg.Event))

	case replyMsg:
		if msg.err != nil && (errors.Is(msg.err, orchestration.ErrEmptyMessage) || errors.Is(msg.err, orchestration.ErrRequestInFlight)) {
			cmds = append(cmds, m.showNotice(msg.err.Error()))
		}
		m.refresh()

	case noticeExpiredMsg:
		if msg.id == m.noticeID {
			m.notice = ""
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())

	if m.mode == modeName {
		m.assistant.SetUserName(text)
		m.leaveNameMode()
		return nil
	}

	if text == "" {
		return nil
	}
	if m.assistant.IsLoading() {
		return m.showNotice("Wait for the current reply to finish.")
	}

	m.input.Reset()
	assistant, ctx := m.assistant, m.ctx
	return func() tea.Msg {
		_, err := assistant.SendMessage(ctx, text, false)
		return replyMsg{err: err}
	}
}

func (m *Model) leaveNameMode() {
	m.mode = modeMessage
	m.input.Reset()
	m.input.Placeholder = "Type a message..."
}

func (m *Model) toggleVoice() tea.Cmd {
	if m.assistant.VoiceState() != orchestration.VoiceIdle {
		m.assistant.DeactivateVoice()
		return nil
	}
	if err := m.assistant.ActivateVoice(); err != nil {
		return m.showNotice(err.Error())
	}
	return nil
}

func (m *Model) toggleDictation() tea.Cmd {
	if m.assistant.IsListening() {
		m.assistant.StopListening()
		return nil
	}
	if _, err := m.assistant.StartListening(m.ctx); err != nil {
		return m.showNotice(err.Error())
	}
	return nil
}

func (m *Model) toggleSpeaking() tea.Cmd {
	if m.assistant.IsSpeaking() {
		m.assistant.StopSpeaking()
		return nil
	}

	reply := lastReply(m.assistant.Messages())
	if reply == "" {
		return m.showNotice("Nothing to read aloud yet.")
	}
	if _, err := m.assistant.Speak(m.ctx, reply); err != nil {
		return m.showNotice(err.Error())
	}
	return nil
}

func (m *Model) handleEvent(event events.Event) tea.Cmd {
	switch event := event.(type) {
	case events.ErrorReported:
		m.refresh()
		return m.showNotice(event.Message())
	case events.UserTranscriptUpdated:
		if m.assistant.VoiceState() == orchestration.VoiceIdle && m.mode == modeMessage {
			m.input.SetValue(event.Transcript)
			m.input.CursorEnd()
		}
	case events.UserWakePhraseDetected:
		m.notice = ""
	}
	m.refresh()
	return nil
}

func (m *Model) showNotice(notice string) tea.Cmd {
	m.noticeID++
	m.notice = notice
	id := m.noticeID
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return noticeExpiredMsg{id: id}
	})
}

func (m *Model) resize() {
	m.input.Width = max(m.width-6, 10)
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-lipgloss.Height(m.header())-lipgloss.Height(m.footer()), 1)
	m.refresh()
}

// refresh re-renders the conversation and keeps the view pinned to the
// newest message.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m *Model) renderMessages() string {
	width := max(m.width-4, 20)

	var sb strings.Builder
	for _, message := range m.assistant.Messages() {
		if message.Role == llms.RoleUser {
			sb.WriteString(UserLabelStyle.Render("You"))
		} else {
			sb.WriteString(AssistantLabelStyle.Render("Siva"))
		}
		sb.WriteString("\n")
		sb.WriteString(MessageStyle.Render(wordwrap.String(message.Content, width)))
		sb.WriteString("\n\n")
	}
	if m.assistant.IsLoading() {
		sb.WriteString(StatusStyle.Render("Siva is thinking..."))
	}
	return sb.String()
}

func (m *Model) header() string {
	return TitleStyle.Render("Siva") + StatusStyle.Render("  talking with "+m.assistant.UserName())
}

func (m *Model) footer() string {
	status := StatusStyle.Render(m.status())
	if m.notice != "" {
		status = NoticeStyle.Render(m.notice)
	}
	return lipgloss.JoinVertical(lipgloss.Left, InputStyle.Render(m.input.View()), status)
}

func (m *Model) status() string {
	parts := []string{fmt.Sprintf("voice: %s", m.assistant.VoiceState())}
	if m.assistant.IsListening() {
		parts = append(parts, "listening")
	}
	if m.assistant.IsSpeaking() {
		parts = append(parts, "speaking")
	}
	if !m.assistant.IsSpeechInputSupported() {
		parts = append(parts, "no microphone")
	}
	if !m.assistant.IsSpeechOutputSupported() {
		parts = append(parts, "no speaker")
	}

	var help []string
	for _, binding := range m.keys.ShortHelp() {
		help = append(help, binding.Help().Key+" "+binding.Help().Desc)
	}
	return strings.Join(parts, " | ") + "   " + strings.Join(help, " · ")
}

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.viewport.View(), m.footer())
}

func lastReply(messages []llms.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llms.RoleAssistant {
			return messages[i].Content
		}
	}
	return ""
}
