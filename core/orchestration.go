package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/siva/core/conversations"
	events "github.com/koscakluka/siva/core/events"
	"github.com/koscakluka/siva/core/llms"
	"github.com/koscakluka/siva/core/speechtotext"
	"github.com/koscakluka/siva/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrRequestInFlight = errors.New("a response is already being generated")
	ErrNoChatClient    = errors.New("no chat client configured")
	ErrVoiceModeActive = errors.New("voice mode is active")
)

// Orchestrator ties the conversation, the chat client and the speech
// adapters together. Typed and spoken messages go through SendMessage, which
// admits one request at a time.
type Orchestrator struct {
	chat        ChatClient
	recognizer  speechtotext.Recognizer
	synthesizer texttospeech.Synthesizer

	locale       string
	speechRate   float64
	speechPitch  float64
	speechVolume float64
	voiceOptions VoiceOptions

	greeting           string
	hideVoiceExchanges bool
	errorReporter      func(error)

	store   *conversations.Store
	bus     *eventBus
	input   *speechInput
	output  *speechOutput
	voice   *VoiceController
	loading atomic.Bool

	mu       sync.RWMutex
	userName string

	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		locale:       speechtotext.DefaultLocale,
		speechRate:   texttospeech.DefaultRate,
		speechPitch:  texttospeech.DefaultPitch,
		speechVolume: texttospeech.DefaultVolume,
		voiceOptions: defaultVoiceOptions(),
		greeting:     DefaultGreeting,
		bus:          newEventBus(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.greeting != "" {
		o.store = conversations.NewStore(llms.NewAssistantMessage(o.greeting))
	} else {
		o.store = conversations.NewStore()
	}

	o.input = newSpeechInput(o.recognizer, o.locale)
	o.input.SetEventEmitter(o.bus.emitter())
	o.output = newSpeechOutput(o.synthesizer, o.speechRate, o.speechPitch, o.speechVolume)
	o.output.SetEventEmitter(o.bus.emitter())
	o.voice = newVoiceController(o.input, o.output, o, o.bus, o.voiceOptions, o.report)

	return o
}

func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.voice.Close()
		o.input.Close()
		o.output.Close()
	})
}

// Subscribe registers handler for every event emitted from now on and
// returns a function that removes it.
func (o *Orchestrator) Subscribe(handler EventHandler) func() {
	return o.bus.subscribe(handler)
}

// SendMessage adds text to the conversation as a user message and streams
// the reply. Typed messages grow an assistant message as deltas arrive,
// while replies to spoken messages are collected privately and added once
// complete. On failure the conversation is restored to what it was before
// the call.
//
// The complete reply is returned.
func (o *Orchestrator) SendMessage(ctx context.Context, text string, fromVoice bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if o.chat == nil {
		o.report(ErrNoChatClient)
		return "", ErrNoChatClient
	}
	if !o.loading.CompareAndSwap(false, true) {
		return "", ErrRequestInFlight
	}
	defer o.loading.Store(false)

	ctx, span := tracer.Start(ctx, "send message")
	defer span.End()
	span.SetAttributes(attribute.Bool("message.from_voice", fromVoice))

	record := !fromVoice || !o.hideVoiceExchanges
	snapshot := o.store.Len()
	message := llms.NewUserMessage(text)
	history := append(o.store.Messages(), message)

	if record {
		if err := o.store.Append(message); err != nil {
			err = fmt.Errorf("failed to add user message: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.report(err)
			return "", err
		}
	}
	o.bus.emit(events.NewUserMessageSubmitted(text, fromVoice))
	o.bus.emit(events.NewAssistantResponseStarted(fromVoice))

	stream := o.chat.PromptWithStream(ctx,
		llms.WithMessages(history...),
		llms.WithUserName(o.UserName()),
	)

	live := record && !fromVoice
	started := false
	var response strings.Builder
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return "", o.fail(ctx, span, snapshot, fromVoice, err)
		}

		content, ok := chunk.(llms.StreamContentChunk)
		if !ok || content.Content() == "" {
			continue
		}
		delta := content.Content()
		response.WriteString(delta)

		if !live {
			continue
		}
		if !started {
			if err := o.store.BeginAssistantMessage(); err != nil {
				return "", o.fail(ctx, span, snapshot, fromVoice, err)
			}
			started = true
		}
		if err := o.store.AppendToAssistantMessage(delta); err != nil {
			return "", o.fail(ctx, span, snapshot, fromVoice, err)
		}
		o.bus.emit(events.NewAssistantResponseSegment(delta))
	}

	reply := response.String()
	switch {
	case started:
		if _, err := o.store.FinishAssistantMessage(); err != nil {
			return "", o.fail(ctx, span, snapshot, fromVoice, err)
		}
	case record && fromVoice && reply != "":
		if err := o.store.Append(llms.NewAssistantMessage(reply)); err != nil {
			return "", o.fail(ctx, span, snapshot, fromVoice, err)
		}
	}

	span.SetAttributes(attribute.Int("response.length", len(reply)))
	o.bus.emit(events.NewAssistantResponseFinal(reply, fromVoice))
	return reply, nil
}

// fail rolls the conversation back to snapshot and reports err unless the
// request was cancelled on purpose.
func (o *Orchestrator) fail(ctx context.Context, span trace.Span, snapshot int, fromVoice bool, err error) error {
	o.store.Truncate(snapshot)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	o.bus.emit(events.NewAssistantResponseFailed(err, fromVoice))
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Debug("response cancelled", "from_voice", fromVoice)
		return err
	}
	o.report(err)
	return err
}

func (o *Orchestrator) report(err error) {
	logger.Error("error reported", "error", err)
	o.bus.emit(events.NewErrorReported(err))
	if o.errorReporter != nil {
		o.errorReporter(err)
	}
}

func (o *Orchestrator) IsLoading() bool {
	return o.loading.Load()
}

// Messages returns a copy of the conversation.
func (o *Orchestrator) Messages() []llms.Message {
	return o.store.Messages()
}

func (o *Orchestrator) UserName() string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.userName == "" {
		return llms.DefaultUserName
	}
	return o.userName
}

// SetUserName changes the name sent with the following requests. An empty
// name restores the default.
func (o *Orchestrator) SetUserName(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.userName = strings.TrimSpace(name)
}

func (o *Orchestrator) IsSpeechInputSupported() bool {
	return o.input.IsSupported()
}

func (o *Orchestrator) IsSpeechOutputSupported() bool {
	return o.output.IsSupported()
}

// StartListening captures a single utterance. Its transcript is delivered
// through [events.UserTranscriptUpdated] and [events.UserRecognitionEnded]
// events and is not sent anywhere.
func (o *Orchestrator) StartListening(ctx context.Context) (string, error) {
	if o.voice.State() != VoiceIdle {
		return "", ErrVoiceModeActive
	}
	sessionID, err := o.input.StartOneShot(ctx)
	if err != nil {
		o.report(err)
		return "", err
	}
	return sessionID, nil
}

func (o *Orchestrator) StopListening() {
	if o.voice.State() != VoiceIdle {
		return
	}
	o.input.Stop()
}

func (o *Orchestrator) IsListening() bool {
	return o.input.IsListening()
}

// Transcript returns the latest transcript of the current or last
// recognition session.
func (o *Orchestrator) Transcript() string {
	return o.input.Transcript()
}

// Speak reads text aloud, replacing anything being spoken.
func (o *Orchestrator) Speak(ctx context.Context, text string) (string, error) {
	if o.voice.State() != VoiceIdle {
		return "", ErrVoiceModeActive
	}
	utteranceID, err := o.output.Speak(ctx, text)
	if err != nil {
		o.report(err)
		return "", err
	}
	return utteranceID, nil
}

func (o *Orchestrator) StopSpeaking() {
	o.output.Stop()
}

func (o *Orchestrator) IsSpeaking() bool {
	return o.output.IsSpeaking()
}

// ActivateVoice starts the hands-free loop, see [VoiceController].
func (o *Orchestrator) ActivateVoice() error {
	if o.voice.State() == VoiceIdle {
		o.input.Stop()
	}
	return o.voice.Activate()
}

func (o *Orchestrator) DeactivateVoice() {
	o.voice.Deactivate()
}

func (o *Orchestrator) VoiceState() VoiceState {
	return o.voice.State()
}
