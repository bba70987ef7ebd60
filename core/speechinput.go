package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	events "github.com/koscakluka/siva/core/events"
	"github.com/koscakluka/siva/core/speechtotext"
)

var ErrSpeechInputUnsupported = errors.New("speech recognition is not supported")

const (
	wakeRestartDelay       = 250 * time.Millisecond
	maxWakeRestartFailures = 5
)

type speechInput struct {
	// recognizer is nil when speech recognition is unavailable.
	recognizer speechtotext.Recognizer
	locale     string

	emitEvent eventEmitter

	mu         sync.Mutex
	current    *recognitionSession
	transcript string
}

type recognitionSession struct {
	id         string
	ctx        context.Context
	continuous bool

	handle   speechtotext.Recognition
	ended    bool
	failures int
}

func newSpeechInput(recognizer speechtotext.Recognizer, locale string) *speechInput {
	return &speechInput{
		recognizer: recognizer,
		locale:     locale,
		emitEvent:  noopEventEmitter,
	}
}

func (s *speechInput) SetEventEmitter(emitEvent eventEmitter) {
	if s != nil {
		if emitEvent != nil {
			s.emitEvent = emitEvent
		} else {
			s.emitEvent = noopEventEmitter
		}
	}
}

func (s *speechInput) IsSupported() bool {
	return s != nil && s.recognizer != nil
}

func (s *speechInput) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current != nil && !s.current.ended
}

func (s *speechInput) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transcript
}

// StartOneShot stops any running session and starts one that ends after the
// first finished utterance.
func (s *speechInput) StartOneShot(ctx context.Context) (string, error) {
	return s.start(ctx, false)
}

// StartContinuousWake stops any running session and starts one that keeps
// listening until stopped, restarting the engine when it ends on its own.
func (s *speechInput) StartContinuousWake(ctx context.Context) (string, error) {
	return s.start(ctx, true)
}

func (s *speechInput) start(ctx context.Context, continuous bool) (string, error) {
	if !s.IsSupported() {
		return "", ErrSpeechInputUnsupported
	}

	session := &recognitionSession{
		id:         uuid.NewString(),
		ctx:        ctx,
		continuous: continuous,
	}

	s.mu.Lock()
	previous := s.current
	s.current = session
	s.transcript = ""
	s.mu.Unlock()

	s.stopSession(previous)

	handle, err := s.recognize(session)
	if err != nil {
		s.mu.Lock()
		if s.current == session {
			s.current = nil
		}
		session.ended = true
		s.mu.Unlock()
		return "", fmt.Errorf("failed to start recognition: %w", err)
	}

	if !s.attach(session, handle) {
		return "", fmt.Errorf("failed to start recognition: session superseded")
	}

	s.emitEvent(events.NewUserListeningStateChanged(session.id, true))
	return session.id, nil
}

func (s *speechInput) recognize(session *recognitionSession) (speechtotext.Recognition, error) {
	return s.recognizer.Recognize(session.ctx,
		speechtotext.WithLocale(s.locale),
		speechtotext.WithInterimResults(true),
		speechtotext.WithContinuous(session.continuous),
		speechtotext.WithTranscriptCallback(func(transcript string) { s.onTranscript(session, transcript) }),
		speechtotext.WithEndedCallback(func(err error) { s.onEnded(session, err) }),
	)
}

// attach stores the engine handle on the session. If the session was
// superseded while the engine was starting, the handle is released instead.
func (s *speechInput) attach(session *recognitionSession, handle speechtotext.Recognition) bool {
	s.mu.Lock()
	superseded := s.current != session || session.ended
	if !superseded {
		session.handle = handle
	}
	s.mu.Unlock()

	if superseded {
		if err := handle.Stop(); err != nil {
			logger.Warn("failed to stop superseded recognition", "session", session.id, "error", err)
		}
		return false
	}
	return true
}

// Stop ends the current session, if any.
func (s *speechInput) Stop() {
	if s == nil {
		return
	}

	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()

	s.stopSession(current)
}

func (s *speechInput) stopSession(session *recognitionSession) {
	if session == nil {
		return
	}

	s.mu.Lock()
	if session.ended {
		s.mu.Unlock()
		return
	}
	session.ended = true
	handle := session.handle
	s.mu.Unlock()

	if handle != nil {
		if err := handle.Stop(); err != nil {
			logger.Warn("failed to stop recognition", "session", session.id, "error", err)
		}
	}

	s.emitEvent(events.NewUserListeningStateChanged(session.id, false))
	s.emitEvent(events.NewUserRecognitionEnded(session.id, events.RecognitionStopped, nil))
}

func (s *speechInput) onTranscript(session *recognitionSession, transcript string) {
	s.mu.Lock()
	if s.current != session || session.ended {
		s.mu.Unlock()
		return
	}
	s.transcript = transcript
	session.failures = 0
	s.mu.Unlock()

	s.emitEvent(events.NewUserTranscriptUpdated(session.id, transcript))
}

func (s *speechInput) onEnded(session *recognitionSession, err error) {
	s.mu.Lock()
	if s.current != session || session.ended {
		s.mu.Unlock()
		return
	}

	if session.continuous && session.ctx.Err() == nil {
		if err != nil {
			session.failures++
		}
		if session.failures <= maxWakeRestartFailures {
			session.handle = nil
			failures := session.failures
			s.mu.Unlock()

			if err != nil {
				logger.Warn("wake recognition failed, restarting", "session", session.id, "error", err, "failures", failures)
				s.emitEvent(events.NewUserListeningStateChanged(session.id, false))
				time.AfterFunc(wakeRestartDelay, func() { s.restart(session) })
				return
			}
			s.restart(session)
			return
		}
	}

	session.ended = true
	if s.current == session {
		s.current = nil
	}
	s.mu.Unlock()

	s.emitEnded(session, err)
}

// restart starts the engine again for a continuous session that is still
// wanted.
func (s *speechInput) restart(session *recognitionSession) {
	s.mu.Lock()
	if s.current != session || session.ended {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	handle, err := s.recognize(session)
	if err != nil {
		s.mu.Lock()
		if s.current != session || session.ended {
			s.mu.Unlock()
			return
		}
		session.ended = true
		s.current = nil
		s.mu.Unlock()

		s.emitEnded(session, fmt.Errorf("failed to restart recognition: %w", err))
		return
	}

	if s.attach(session, handle) {
		s.emitEvent(events.NewUserListeningStateChanged(session.id, true))
	}
}

func (s *speechInput) emitEnded(session *recognitionSession, err error) {
	reason := events.RecognitionCompleted
	if err != nil {
		reason = events.RecognitionError
		logger.Warn("recognition ended with error", "session", session.id, "error", err)
	}

	s.emitEvent(events.NewUserListeningStateChanged(session.id, false))
	s.emitEvent(events.NewUserRecognitionEnded(session.id, reason, err))
}

func (s *speechInput) Close() {
	s.Stop()
}
