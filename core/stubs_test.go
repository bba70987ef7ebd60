package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	events "github.com/koscakluka/siva/core/events"
	"github.com/koscakluka/siva/core/llms"
	"github.com/koscakluka/siva/core/speechtotext"
	"github.com/koscakluka/siva/core/texttospeech"
)

const waitTimeout = 2 * time.Second

type fakeRecognizer struct {
	mu       sync.Mutex
	sessions []*fakeRecognition
	err      error
}

type fakeRecognition struct {
	options speechtotext.RecognitionOptions

	mu      sync.Mutex
	stopped bool
}

func (r *fakeRecognizer) Recognize(_ context.Context, opts ...speechtotext.RecognitionOption) (speechtotext.Recognition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	recognition := &fakeRecognition{options: speechtotext.NewRecognitionOptions(opts...)}
	r.sessions = append(r.sessions, recognition)
	return recognition, nil
}

func (r *fakeRecognizer) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *fakeRecognizer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *fakeRecognizer) session(i int) *fakeRecognition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[i]
}

// running returns the sessions that were not stopped.
func (r *fakeRecognizer) running() []*fakeRecognition {
	r.mu.Lock()
	sessions := append([]*fakeRecognition(nil), r.sessions...)
	r.mu.Unlock()

	var running []*fakeRecognition
	for _, session := range sessions {
		if !session.isStopped() {
			running = append(running, session)
		}
	}
	return running
}

func (r *fakeRecognizer) waitForSessions(t *testing.T, n int) *fakeRecognition {
	t.Helper()

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if r.count() >= n {
			return r.session(n - 1)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d recognition sessions, got %d", n, r.count())
	return nil
}

func (r *fakeRecognition) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func (r *fakeRecognition) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *fakeRecognition) say(transcript string) {
	r.options.TranscriptCallback(transcript)
}

// end finishes the session as the engine would on its own.
func (r *fakeRecognition) end(err error) {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.options.EndedCallback(err)
}

type fakeSynthesizer struct {
	notifies bool
	err      error

	mu         sync.Mutex
	utterances []*fakeUtterance
}

type fakeUtterance struct {
	text    string
	options texttospeech.SpeechOptions

	mu        sync.Mutex
	cancelled bool
}

func (s *fakeSynthesizer) Speak(_ context.Context, text string, opts ...texttospeech.SpeechOption) (texttospeech.Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	utterance := &fakeUtterance{text: text, options: texttospeech.NewSpeechOptions(opts...)}
	s.utterances = append(s.utterances, utterance)
	return utterance, nil
}

func (s *fakeSynthesizer) NotifiesPlaybackEnd() bool {
	return s.notifies
}

func (s *fakeSynthesizer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.utterances)
}

func (s *fakeSynthesizer) utterance(i int) *fakeUtterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.utterances[i]
}

func (s *fakeSynthesizer) waitForUtterances(t *testing.T, n int) *fakeUtterance {
	t.Helper()

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if s.count() >= n {
			return s.utterance(n - 1)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d utterances, got %d", n, s.count())
	return nil
}

func (u *fakeUtterance) Cancel() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cancelled = true
	return nil
}

func (u *fakeUtterance) isCancelled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cancelled
}

func (u *fakeUtterance) start() { u.options.StartedCallback() }
func (u *fakeUtterance) finish() { u.options.EndedCallback() }

type contentChunk string

func (c contentChunk) FinishReason() *string { return nil }
func (c contentChunk) Content() string       { return string(c) }

// chatStub replies with chunks, then err if set. A non-nil gate blocks the
// stream after the first chunk until it is closed or the context is done.
type chatStub struct {
	chunks []string
	err    error
	gate   chan struct{}

	mu       sync.Mutex
	requests []llms.StreamingPromptOptions
}

type chatStubStream struct {
	stub *chatStub
}

func (c *chatStub) PromptWithStream(_ context.Context, opts ...llms.StreamingPromptOption) llms.Stream {
	c.mu.Lock()
	c.requests = append(c.requests, llms.NewStreamingPromptOptions(opts...))
	c.mu.Unlock()
	return chatStubStream{stub: c}
}

func (c *chatStub) lastRequest() llms.StreamingPromptOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func (c *chatStub) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (s chatStubStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for i, chunk := range s.stub.chunks {
			if i == 1 && s.stub.gate != nil {
				select {
				case <-s.stub.gate:
				case <-ctx.Done():
					yield(nil, ctx.Err())
					return
				}
			}
			if !yield(contentChunk(chunk), nil) {
				return
			}
		}
		if s.stub.err != nil {
			yield(nil, s.stub.err)
		}
	}
}

var errTransport = errors.New("connection reset")

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) kinds() []events.Kind {
	var kinds []events.Kind
	for _, event := range r.snapshot() {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func (r *eventRecorder) count(kind events.Kind) int {
	n := 0
	for _, event := range r.snapshot() {
		if event.Kind() == kind {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}
