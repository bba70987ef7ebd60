package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	events "github.com/koscakluka/siva/core/events"
	"github.com/koscakluka/siva/core/llms"
)

func TestSendMessageStreamsReplyIntoConversation(t *testing.T) {
	chat := &chatStub{chunks: []string{"Hel", "lo"}}
	recorder := &eventRecorder{}
	o := NewOrchestrator(WithChatClient(chat), WithGreeting(""), WithEventHandler(recorder.record))
	defer o.Close()

	reply, err := o.SendMessage(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("expected message to be sent, got %v", err)
	}
	if reply != "Hello" {
		t.Fatalf("expected reply %q, got %q", "Hello", reply)
	}

	messages := o.Messages()
	expected := []llms.Message{
		{Role: llms.RoleUser, Content: "hello"},
		{Role: llms.RoleAssistant, Content: "Hello"},
	}
	if len(messages) != len(expected) {
		t.Fatalf("expected %d messages, got %+v", len(expected), messages)
	}
	for i := range expected {
		if messages[i] != expected[i] {
			t.Fatalf("expected message %d to be %+v, got %+v", i, expected[i], messages[i])
		}
	}

	if got := recorder.count(events.KindAssistantResponseSegment); got != 2 {
		t.Fatalf("expected 2 response segments, got %d", got)
	}
	if got := recorder.count(events.KindAssistantResponseFinal); got != 1 {
		t.Fatalf("expected a final response, got %d", got)
	}
	if o.IsLoading() {
		t.Fatalf("expected orchestrator not to be loading after completion")
	}
}

func TestSendMessageSendsHistoryAndUserName(t *testing.T) {
	chat := &chatStub{chunks: []string{"Hi Ana"}}
	o := NewOrchestrator(WithChatClient(chat))
	defer o.Close()

	if _, err := o.SendMessage(context.Background(), "  hi  ", false); err != nil {
		t.Fatalf("expected message to be sent, got %v", err)
	}

	request := chat.lastRequest()
	if request.UserName != llms.DefaultUserName {
		t.Fatalf("expected default user name, got %q", request.UserName)
	}
	if len(request.Messages) != 2 {
		t.Fatalf("expected greeting and user message, got %+v", request.Messages)
	}
	if request.Messages[0].Role != llms.RoleAssistant || request.Messages[0].Content != DefaultGreeting {
		t.Fatalf("expected greeting first, got %+v", request.Messages[0])
	}
	if request.Messages[1].Content != "hi" {
		t.Fatalf("expected trimmed user message, got %q", request.Messages[1].Content)
	}

	o.SetUserName("Ana")
	if _, err := o.SendMessage(context.Background(), "again", false); err != nil {
		t.Fatalf("expected message to be sent, got %v", err)
	}
	if got := chat.lastRequest().UserName; got != "Ana" {
		t.Fatalf("expected user name Ana, got %q", got)
	}
	if got := len(chat.lastRequest().Messages); got != 4 {
		t.Fatalf("expected 4 messages in second request, got %d", got)
	}
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	chat := &chatStub{chunks: []string{"unused"}}
	o := NewOrchestrator(WithChatClient(chat))
	defer o.Close()

	if _, err := o.SendMessage(context.Background(), " \n\t", false); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if got := chat.requestCount(); got != 0 {
		t.Fatalf("expected no requests, got %d", got)
	}
}

func TestSendMessageWithoutChatClientReportsError(t *testing.T) {
	var reported error
	o := NewOrchestrator(WithErrorReporter(func(err error) { reported = err }))
	defer o.Close()

	if _, err := o.SendMessage(context.Background(), "hello", false); !errors.Is(err, ErrNoChatClient) {
		t.Fatalf("expected ErrNoChatClient, got %v", err)
	}
	if !errors.Is(reported, ErrNoChatClient) {
		t.Fatalf("expected ErrNoChatClient to be reported, got %v", reported)
	}
}

func TestSendMessageRejectsConcurrentRequest(t *testing.T) {
	chat := &chatStub{chunks: []string{"Hel", "lo"}, gate: make(chan struct{})}
	o := NewOrchestrator(WithChatClient(chat))
	defer o.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := o.SendMessage(context.Background(), "first", false); err != nil {
			t.Errorf("expected first message to succeed, got %v", err)
		}
	}()

	waitFor(t, "first request to start", o.IsLoading)

	if _, err := o.SendMessage(context.Background(), "second", false); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}

	close(chat.gate)
	wg.Wait()

	if got := chat.requestCount(); got != 1 {
		t.Fatalf("expected a single request, got %d", got)
	}
}

func TestSendMessageFailureRestoresConversation(t *testing.T) {
	chat := &chatStub{chunks: []string{"Hel"}, err: errTransport}
	recorder := &eventRecorder{}
	var reported []error
	o := NewOrchestrator(
		WithChatClient(chat),
		WithEventHandler(recorder.record),
		WithErrorReporter(func(err error) { reported = append(reported, err) }),
	)
	defer o.Close()

	before := o.Messages()

	if _, err := o.SendMessage(context.Background(), "hello", false); !errors.Is(err, errTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}

	after := o.Messages()
	if len(after) != len(before) {
		t.Fatalf("expected conversation to be restored to %d messages, got %+v", len(before), after)
	}
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("expected message %d to be %+v, got %+v", i, before[i], after[i])
		}
	}

	if len(reported) != 1 || !errors.Is(reported[0], errTransport) {
		t.Fatalf("expected transport error to be reported once, got %v", reported)
	}
	if got := recorder.count(events.KindErrorReported); got != 1 {
		t.Fatalf("expected an error event, got %d", got)
	}
	if got := recorder.count(events.KindAssistantResponseFailed); got != 1 {
		t.Fatalf("expected a failed response event, got %d", got)
	}
	if o.IsLoading() {
		t.Fatalf("expected loading gate to be released after failure")
	}
}

func TestVoiceMessageRepliesAreNotStreamedLive(t *testing.T) {
	chat := &chatStub{chunks: []string{"It is ", "noon."}}
	recorder := &eventRecorder{}
	o := NewOrchestrator(WithChatClient(chat), WithGreeting(""), WithEventHandler(recorder.record))
	defer o.Close()

	reply, err := o.SendMessage(context.Background(), "what time is it", true)
	if err != nil {
		t.Fatalf("expected voice message to be sent, got %v", err)
	}
	if reply != "It is noon." {
		t.Fatalf("expected full reply, got %q", reply)
	}
	if got := recorder.count(events.KindAssistantResponseSegment); got != 0 {
		t.Fatalf("expected no live segments for voice replies, got %d", got)
	}

	messages := o.Messages()
	if len(messages) != 2 || messages[1].Content != "It is noon." {
		t.Fatalf("expected voice exchange to be recorded, got %+v", messages)
	}
}

func TestHiddenVoiceExchangesStayOutOfConversation(t *testing.T) {
	chat := &chatStub{chunks: []string{"It is noon."}}
	o := NewOrchestrator(WithChatClient(chat), WithGreeting(""), WithVoiceExchangesHidden())
	defer o.Close()

	if _, err := o.SendMessage(context.Background(), "what time is it", true); err != nil {
		t.Fatalf("expected voice message to be sent, got %v", err)
	}
	if got := len(o.Messages()); got != 0 {
		t.Fatalf("expected hidden voice exchange not to be recorded, got %d messages", got)
	}
	if got := len(chat.lastRequest().Messages); got != 1 {
		t.Fatalf("expected request to carry the spoken message, got %d messages", got)
	}

	if _, err := o.SendMessage(context.Background(), "typed", false); err != nil {
		t.Fatalf("expected typed message to be sent, got %v", err)
	}
	if got := len(o.Messages()); got != 2 {
		t.Fatalf("expected typed exchange to be recorded, got %d messages", got)
	}
}

func TestCancelledRequestIsNotReported(t *testing.T) {
	chat := &chatStub{chunks: []string{"Hel", "lo"}, gate: make(chan struct{})}
	var reported []error
	o := NewOrchestrator(WithChatClient(chat), WithErrorReporter(func(err error) { reported = append(reported, err) }))
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	before := len(o.Messages())
	if _, err := o.SendMessage(ctx, "hello", false); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := len(o.Messages()); got != before {
		t.Fatalf("expected conversation to be restored to %d messages, got %d", before, got)
	}
	if len(reported) != 0 {
		t.Fatalf("expected cancellation not to be reported, got %v", reported)
	}
}

func TestSpeakWithoutSynthesizerReportsUnsupported(t *testing.T) {
	var reported error
	o := NewOrchestrator(WithErrorReporter(func(err error) { reported = err }))
	defer o.Close()

	if _, err := o.Speak(context.Background(), "hello"); !errors.Is(err, ErrSpeechOutputUnsupported) {
		t.Fatalf("expected ErrSpeechOutputUnsupported, got %v", err)
	}
	if !errors.Is(reported, ErrSpeechOutputUnsupported) {
		t.Fatalf("expected unsupported output to be reported, got %v", reported)
	}
}

func TestSpeakAndStopSpeaking(t *testing.T) {
	synthesizer := &fakeSynthesizer{notifies: true}
	o := NewOrchestrator(WithSpeechSynthesizer(synthesizer), WithSpeechSettings(1.2, 0.9, 0.5))
	defer o.Close()

	if _, err := o.Speak(context.Background(), DefaultGreeting); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}
	utterance := synthesizer.utterance(0)
	if utterance.options.Rate != 1.2 || utterance.options.Pitch != 0.9 || utterance.options.Volume != 0.5 {
		t.Fatalf("expected configured speech settings, got %+v", utterance.options)
	}

	utterance.start()
	if !o.IsSpeaking() {
		t.Fatalf("expected orchestrator to be speaking")
	}
	o.StopSpeaking()
	if o.IsSpeaking() {
		t.Fatalf("expected orchestrator to stop speaking")
	}
	if !utterance.isCancelled() {
		t.Fatalf("expected utterance to be cancelled")
	}
}

func TestManualListeningCapturesTranscript(t *testing.T) {
	recognizer := &fakeRecognizer{}
	o := NewOrchestrator(WithSpeechRecognizer(recognizer), WithLocale("en-GB"))
	defer o.Close()

	if _, err := o.StartListening(context.Background()); err != nil {
		t.Fatalf("expected listening to start, got %v", err)
	}
	session := recognizer.session(0)
	if session.options.Locale != "en-GB" {
		t.Fatalf("expected locale en-GB, got %q", session.options.Locale)
	}

	session.say("tell me a joke")
	session.end(nil)

	if o.IsListening() {
		t.Fatalf("expected listening to end")
	}
	if got := o.Transcript(); got != "tell me a joke" {
		t.Fatalf("expected transcript %q, got %q", "tell me a joke", got)
	}
}
