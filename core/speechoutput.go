package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	events "github.com/koscakluka/siva/core/events"
	"github.com/koscakluka/siva/core/texttospeech"
)

var ErrSpeechOutputUnsupported = errors.New("speech synthesis is not supported")

type speechOutput struct {
	// synthesizer is nil when speech synthesis is unavailable.
	synthesizer texttospeech.Synthesizer
	rate        float64
	pitch       float64
	volume      float64

	emitEvent eventEmitter

	mu      sync.Mutex
	current *utterance
}

type utterance struct {
	id string

	handle   texttospeech.Utterance
	speaking bool
	ended    bool
}

func newSpeechOutput(synthesizer texttospeech.Synthesizer, rate, pitch, volume float64) *speechOutput {
	return &speechOutput{
		synthesizer: synthesizer,
		rate:        rate,
		pitch:       pitch,
		volume:      volume,
		emitEvent:   noopEventEmitter,
	}
}

func (s *speechOutput) SetEventEmitter(emitEvent eventEmitter) {
	if s != nil {
		if emitEvent != nil {
			s.emitEvent = emitEvent
		} else {
			s.emitEvent = noopEventEmitter
		}
	}
}

func (s *speechOutput) IsSupported() bool {
	return s != nil && s.synthesizer != nil
}

// NotifiesPlaybackEnd reports whether the end of an utterance is observed
// when its audio stops, rather than when it was handed to the engine.
func (s *speechOutput) NotifiesPlaybackEnd() bool {
	return s.IsSupported() && texttospeech.NotifiesPlaybackEnd(s.synthesizer)
}

func (s *speechOutput) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current != nil && s.current.speaking && !s.current.ended
}

// Speak cancels whatever is playing and speaks text. The returned ID matches
// the UtteranceID of the speaking state events of this utterance.
func (s *speechOutput) Speak(ctx context.Context, text string) (string, error) {
	if !s.IsSupported() {
		return "", ErrSpeechOutputUnsupported
	}

	next := &utterance{id: uuid.NewString()}

	s.mu.Lock()
	previous := s.current
	s.current = next
	s.mu.Unlock()

	s.cancel(previous)

	handle, err := s.synthesizer.Speak(ctx, text,
		texttospeech.WithRate(s.rate),
		texttospeech.WithPitch(s.pitch),
		texttospeech.WithVolume(s.volume),
		texttospeech.WithStartedCallback(func() { s.onStarted(next) }),
		texttospeech.WithEndedCallback(func() { s.onEnded(next, nil) }),
		texttospeech.WithErrorCallback(func(err error) { s.onEnded(next, err) }),
	)
	if err != nil {
		err = fmt.Errorf("failed to speak: %w", err)
		s.onEnded(next, err)
		return next.id, err
	}

	s.mu.Lock()
	released := next.ended
	if !released {
		next.handle = handle
	}
	s.mu.Unlock()

	if released {
		if err := handle.Cancel(); err != nil {
			logger.Warn("failed to cancel finished utterance", "utterance", next.id, "error", err)
		}
	}

	return next.id, nil
}

// Stop cancels the current utterance, if any.
func (s *speechOutput) Stop() {
	if s == nil {
		return
	}

	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()

	s.cancel(current)
}

func (s *speechOutput) cancel(u *utterance) {
	if u == nil {
		return
	}

	s.mu.Lock()
	if u.ended {
		s.mu.Unlock()
		return
	}
	u.ended = true
	wasSpeaking := u.speaking
	u.speaking = false
	handle := u.handle
	s.mu.Unlock()

	if handle != nil {
		if err := handle.Cancel(); err != nil {
			logger.Warn("failed to cancel utterance", "utterance", u.id, "error", err)
		}
	}

	if wasSpeaking {
		s.emitEvent(events.NewAssistantSpeakingStateChanged(u.id, false, nil))
	}
}

func (s *speechOutput) onStarted(u *utterance) {
	s.mu.Lock()
	if s.current != u || u.ended || u.speaking {
		s.mu.Unlock()
		return
	}
	u.speaking = true
	s.mu.Unlock()

	s.emitEvent(events.NewAssistantSpeakingStateChanged(u.id, true, nil))
}

func (s *speechOutput) onEnded(u *utterance, err error) {
	s.mu.Lock()
	if s.current != u || u.ended {
		s.mu.Unlock()
		return
	}
	u.ended = true
	u.speaking = false
	s.current = nil
	s.mu.Unlock()

	if err != nil {
		logger.Warn("utterance failed", "utterance", u.id, "error", err)
	}
	s.emitEvent(events.NewAssistantSpeakingStateChanged(u.id, false, err))
}

func (s *speechOutput) Close() {
	s.Stop()
}
