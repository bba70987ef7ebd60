package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/siva/core/llms"
	"github.com/koscakluka/siva/core/speechtotext"
	"github.com/koscakluka/siva/core/texttospeech"
)

const (
	DefaultGreeting        = "Hey! I'm Siva, your AI assistant. How can I help you today?"
	DefaultAcknowledgement = "Yes?"

	DefaultMinSpeakingFallback  = 2 * time.Second
	DefaultPerCharacterFallback = 70 * time.Millisecond
	DefaultWakeRestartDelay     = 500 * time.Millisecond
	DefaultWakeFailureLimit     = 3
)

type OrchestratorOption func(*Orchestrator)

// ChatClient streams an assistant reply for a conversation.
type ChatClient interface {
	PromptWithStream(ctx context.Context, opts ...llms.StreamingPromptOption) llms.Stream
}

func WithChatClient(client ChatClient) OrchestratorOption {
	return func(o *Orchestrator) { o.chat = client }
}

// WithSpeechRecognizer enables voice input. Without it the orchestrator is
// text only.
func WithSpeechRecognizer(recognizer speechtotext.Recognizer) OrchestratorOption {
	return func(o *Orchestrator) { o.recognizer = recognizer }
}

// WithSpeechSynthesizer enables spoken replies.
func WithSpeechSynthesizer(synthesizer texttospeech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

// WithLocale sets the recognition locale, [speechtotext.DefaultLocale] by
// default.
func WithLocale(locale string) OrchestratorOption {
	return func(o *Orchestrator) {
		if locale != "" {
			o.locale = locale
		}
	}
}

// WithSpeechSettings sets rate, pitch and volume for every utterance.
// Non-positive rate or pitch and volume outside [0, 1] keep the defaults.
func WithSpeechSettings(rate, pitch, volume float64) OrchestratorOption {
	return func(o *Orchestrator) {
		if rate > 0 {
			o.speechRate = rate
		}
		if pitch > 0 {
			o.speechPitch = pitch
		}
		if volume >= 0 && volume <= 1 {
			o.speechVolume = volume
		}
	}
}

// WithGreeting replaces the assistant message the conversation starts with.
// An empty greeting starts with an empty conversation.
func WithGreeting(greeting string) OrchestratorOption {
	return func(o *Orchestrator) { o.greeting = greeting }
}

func WithUserName(name string) OrchestratorOption {
	return func(o *Orchestrator) { o.userName = name }
}

// WithVoiceExchangesHidden keeps messages sent and received by the voice
// loop out of the conversation history.
func WithVoiceExchangesHidden() OrchestratorOption {
	return func(o *Orchestrator) { o.hideVoiceExchanges = true }
}

// WithErrorReporter registers a function that is called with every error the
// user should be told about.
func WithErrorReporter(reporter func(error)) OrchestratorOption {
	return func(o *Orchestrator) { o.errorReporter = reporter }
}

// WithEventHandler subscribes handler to every event before anything is
// emitted.
func WithEventHandler(handler EventHandler) OrchestratorOption {
	return func(o *Orchestrator) { o.bus.subscribe(handler) }
}

func WithVoiceOptions(opts ...VoiceOption) OrchestratorOption {
	return func(o *Orchestrator) {
		for _, opt := range opts {
			opt(&o.voiceOptions)
		}
	}
}

type VoiceOptions struct {
	// WakePhrase starts command capture when heard.
	WakePhrase string
	// Acknowledgement is spoken once the wake phrase is heard, empty
	// disables it.
	Acknowledgement string

	// MinSpeakingFallback and PerCharacterFallback estimate how long a reply
	// plays when the synthesizer cannot report the end of playback.
	MinSpeakingFallback  time.Duration
	PerCharacterFallback time.Duration

	// RestartDelay is how long to wait before listening for the wake phrase
	// again after recognition ended unexpectedly.
	RestartDelay time.Duration
	// WakeFailureLimit is how many wake listening failures in a row are
	// tolerated before the loop goes idle.
	WakeFailureLimit int
}

type VoiceOption func(*VoiceOptions)

func WithWakePhrase(phrase string) VoiceOption {
	return func(o *VoiceOptions) {
		if phrase != "" {
			o.WakePhrase = phrase
		}
	}
}

func WithAcknowledgement(text string) VoiceOption {
	return func(o *VoiceOptions) { o.Acknowledgement = text }
}

func WithSpeakingFallback(minimum, perCharacter time.Duration) VoiceOption {
	return func(o *VoiceOptions) {
		if minimum > 0 {
			o.MinSpeakingFallback = minimum
		}
		if perCharacter > 0 {
			o.PerCharacterFallback = perCharacter
		}
	}
}

func WithWakeRestartDelay(delay time.Duration) VoiceOption {
	return func(o *VoiceOptions) {
		if delay > 0 {
			o.RestartDelay = delay
		}
	}
}

func WithWakeFailureLimit(limit int) VoiceOption {
	return func(o *VoiceOptions) {
		if limit > 0 {
			o.WakeFailureLimit = limit
		}
	}
}

func defaultVoiceOptions() VoiceOptions {
	return VoiceOptions{
		WakePhrase:           DefaultWakePhrase,
		Acknowledgement:      DefaultAcknowledgement,
		MinSpeakingFallback:  DefaultMinSpeakingFallback,
		PerCharacterFallback: DefaultPerCharacterFallback,
		RestartDelay:         DefaultWakeRestartDelay,
		WakeFailureLimit:     DefaultWakeFailureLimit,
	}
}

func (o VoiceOptions) speakingFallback(text string) time.Duration {
	return max(o.MinSpeakingFallback, time.Duration(len([]rune(text)))*o.PerCharacterFallback)
}
