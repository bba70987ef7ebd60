package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/koscakluka/siva/core"
	events "github.com/koscakluka/siva/core/events"
	"github.com/koscakluka/siva/core/llms"
)

type assistantStub struct {
	mu          sync.Mutex
	messages    []llms.Message
	sent        []string
	loading     bool
	userName    string
	voice       orchestration.VoiceState
	activateErr error
	listening   bool
	speaking    bool
	spoken      []string
}

func (a *assistantStub) SendMessage(_ context.Context, text string, _ bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, text)
	a.messages = append(a.messages, llms.NewUserMessage(text), llms.NewAssistantMessage("echo: "+text))
	return "echo: " + text, nil
}

func (a *assistantStub) IsLoading() bool { return a.loading }

func (a *assistantStub) Messages() []llms.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llms.Message(nil), a.messages...)
}

func (a *assistantStub) UserName() string {
	if a.userName == "" {
		return llms.DefaultUserName
	}
	return a.userName
}

func (a *assistantStub) SetUserName(name string)      { a.userName = name }
func (a *assistantStub) IsSpeechInputSupported() bool  { return true }
func (a *assistantStub) IsSpeechOutputSupported() bool { return true }

func (a *assistantStub) StartListening(context.Context) (string, error) {
	a.listening = true
	return "session", nil
}

func (a *assistantStub) StopListening()    { a.listening = false }
func (a *assistantStub) IsListening() bool { return a.listening }

func (a *assistantStub) Speak(_ context.Context, text string) (string, error) {
	a.speaking = true
	a.spoken = append(a.spoken, text)
	return "utterance", nil
}

func (a *assistantStub) StopSpeaking()    { a.speaking = false }
func (a *assistantStub) IsSpeaking() bool { return a.speaking }

func (a *assistantStub) ActivateVoice() error {
	if a.activateErr != nil {
		return a.activateErr
	}
	a.voice = orchestration.VoiceWakeListening
	return nil
}

func (a *assistantStub) DeactivateVoice()                     { a.voice = orchestration.VoiceIdle }
func (a *assistantStub) VoiceState() orchestration.VoiceState { return a.voice }

func newTestModel(assistant *assistantStub) *Model {
	m := NewModel(context.Background(), assistant)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m
}

func typeText(m *Model, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func press(m *Model, keyType tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: keyType})
	return cmd
}

func TestEnterSendsTypedMessage(t *testing.T) {
	assistant := &assistantStub{}
	m := newTestModel(assistant)

	typeText(m, "hello")
	cmd := press(m, tea.KeyEnter)
	if cmd == nil {
		t.Fatalf("expected a command sending the message")
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input to be cleared, got %q", m.input.Value())
	}

	msg := cmd()
	if _, ok := msg.(replyMsg); !ok {
		t.Fatalf("expected reply message, got %T", msg)
	}
	m.Update(msg)

	if len(assistant.sent) != 1 || assistant.sent[0] != "hello" {
		t.Fatalf("expected %q to be sent, got %v", "hello", assistant.sent)
	}
	if view := m.View(); !strings.Contains(view, "echo: hello") {
		t.Fatalf("expected reply in view, got %q", view)
	}
}

func TestEnterIgnoredWhileLoading(t *testing.T) {
	assistant := &assistantStub{loading: true}
	m := newTestModel(assistant)

	typeText(m, "hello")
	press(m, tea.KeyEnter)

	if len(assistant.sent) != 0 {
		t.Fatalf("expected nothing to be sent while loading, got %v", assistant.sent)
	}
	if m.notice == "" {
		t.Fatalf("expected a notice while loading")
	}
	if m.input.Value() != "hello" {
		t.Fatalf("expected input to be kept, got %q", m.input.Value())
	}
}

func TestToggleVoiceMode(t *testing.T) {
	assistant := &assistantStub{}
	m := newTestModel(assistant)

	press(m, tea.KeyCtrlW)
	if assistant.voice != orchestration.VoiceWakeListening {
		t.Fatalf("expected voice mode to be active, got %s", assistant.voice)
	}
	if !strings.Contains(m.View(), "voice: wake_listening") {
		t.Fatalf("expected voice state in status line")
	}

	press(m, tea.KeyCtrlW)
	if assistant.voice != orchestration.VoiceIdle {
		t.Fatalf("expected voice mode to be off, got %s", assistant.voice)
	}
}

func TestVoiceActivationFailureShowsNotice(t *testing.T) {
	assistant := &assistantStub{activateErr: orchestration.ErrSpeechInputUnsupported}
	m := newTestModel(assistant)

	if cmd := press(m, tea.KeyCtrlW); cmd == nil {
		t.Fatalf("expected notice expiry to be scheduled")
	}
	if m.notice != orchestration.ErrSpeechInputUnsupported.Error() {
		t.Fatalf("expected unsupported notice, got %q", m.notice)
	}
}

func TestNoticeExpires(t *testing.T) {
	m := newTestModel(&assistantStub{})
	m.showNotice("first")
	m.showNotice("second")

	m.Update(noticeExpiredMsg{id: 1})
	if m.notice != "second" {
		t.Fatalf("expected stale expiry to be ignored, got %q", m.notice)
	}
	m.Update(noticeExpiredMsg{id: 2})
	if m.notice != "" {
		t.Fatalf("expected notice to expire, got %q", m.notice)
	}
}

func TestErrorEventShowsNotice(t *testing.T) {
	m := newTestModel(&assistantStub{})

	m.Update(EventMsg{Event: events.NewErrorReported(errors.New("Failed to get response"))})
	if m.notice != "Failed to get response" {
		t.Fatalf("expected error notice, got %q", m.notice)
	}
}

func TestDictationFillsInput(t *testing.T) {
	assistant := &assistantStub{}
	m := newTestModel(assistant)

	press(m, tea.KeyCtrlL)
	if !assistant.listening {
		t.Fatalf("expected dictation to start")
	}

	m.Update(EventMsg{Event: events.NewUserTranscriptUpdated("session", "tell me a joke")})
	if m.input.Value() != "tell me a joke" {
		t.Fatalf("expected transcript in input, got %q", m.input.Value())
	}

	press(m, tea.KeyCtrlL)
	if assistant.listening {
		t.Fatalf("expected dictation to stop")
	}
}

func TestTranscriptIgnoredInVoiceMode(t *testing.T) {
	assistant := &assistantStub{voice: orchestration.VoiceActiveListening}
	m := newTestModel(assistant)

	m.Update(EventMsg{Event: events.NewUserTranscriptUpdated("session", "what time is it")})
	if m.input.Value() != "" {
		t.Fatalf("expected voice transcripts to stay out of the input, got %q", m.input.Value())
	}
}

func TestSpeakLastReply(t *testing.T) {
	assistant := &assistantStub{messages: []llms.Message{
		llms.NewAssistantMessage("first"),
		llms.NewUserMessage("question"),
		llms.NewAssistantMessage("answer"),
		llms.NewUserMessage("follow up"),
	}}
	m := newTestModel(assistant)

	press(m, tea.KeyCtrlS)
	if len(assistant.spoken) != 1 || assistant.spoken[0] != "answer" {
		t.Fatalf("expected last reply to be spoken, got %v", assistant.spoken)
	}

	press(m, tea.KeyCtrlS)
	if assistant.speaking {
		t.Fatalf("expected speaking to stop")
	}
}

func TestSetUserName(t *testing.T) {
	assistant := &assistantStub{}
	m := newTestModel(assistant)

	press(m, tea.KeyCtrlN)
	typeText(m, "Ana")
	press(m, tea.KeyEnter)

	if assistant.userName != "Ana" {
		t.Fatalf("expected user name Ana, got %q", assistant.userName)
	}
	if len(assistant.sent) != 0 {
		t.Fatalf("expected name entry not to send a message, got %v", assistant.sent)
	}
	if m.mode != modeMessage {
		t.Fatalf("expected to return to message mode")
	}
}

func TestEscCancelsNameEntry(t *testing.T) {
	assistant := &assistantStub{userName: "Ana"}
	m := newTestModel(assistant)

	press(m, tea.KeyCtrlN)
	typeText(m, "Bob")
	if cmd := press(m, tea.KeyEsc); cmd != nil {
		if _, quit := cmd().(tea.QuitMsg); quit {
			t.Fatalf("expected esc to cancel name entry, not quit")
		}
	}

	if m.mode != modeMessage {
		t.Fatalf("expected to return to message mode")
	}
	if assistant.userName != "Ana" {
		t.Fatalf("expected user name to stay Ana, got %q", assistant.userName)
	}
	if m.input.Value() != "" {
		t.Fatalf("expected name input to be cleared, got %q", m.input.Value())
	}

	cmd := press(m, tea.KeyEsc)
	if cmd == nil {
		t.Fatalf("expected esc to quit outside name entry")
	}
	if _, quit := cmd().(tea.QuitMsg); !quit {
		t.Fatalf("expected quit message, got %T", cmd())
	}
}

type senderStub struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (s *senderStub) Send(msg tea.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *senderStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestBridgeForwardsEventsInOrder(t *testing.T) {
	bridge := NewBridge()
	sender := &senderStub{}
	go bridge.Run(sender)
	defer bridge.Stop()

	for _, transcript := range []string{"a", "b", "c"} {
		bridge.Handle(events.NewUserTranscriptUpdated("session", transcript))
	}

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for events, got %d", sender.count())
		}
		time.Sleep(time.Millisecond)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, expected := range []string{"a", "b", "c"} {
		event := sender.msgs[i].(EventMsg).Event.(events.UserTranscriptUpdated)
		if event.Transcript != expected {
			t.Fatalf("expected event %d to carry %q, got %q", i, expected, event.Transcript)
		}
	}
}
