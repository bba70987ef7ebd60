package deepgram

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/siva/core/audio"
	"github.com/koscakluka/siva/core/texttospeech"
)

// fakeSink plays instantly: marks fire as soon as they are placed unless
// hold is set.
type fakeSink struct {
	mu      sync.Mutex
	played  []byte
	cleared int
	hold    bool
	marks   []func(string)
}

func (s *fakeSink) SendAudio(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, audio...)
	return nil
}

func (s *fakeSink) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	s.marks = nil
}

func (s *fakeSink) Mark(name string, callback func(string)) error {
	s.mu.Lock()
	if s.hold {
		s.marks = append(s.marks, callback)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	callback(name)
	return nil
}

func (s *fakeSink) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (s *fakeSink) snapshot() ([]byte, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.played...), s.cleared, len(s.marks)
}

type speakServer struct {
	*httptest.Server
	requests chan *http.Request
	messages chan string
}

// newSpeakServer answers every Flush with audio followed by Flushed, unless
// respond is false.
func newSpeakServer(t *testing.T, audioFrame []byte, respond bool) *speakServer {
	t.Helper()

	upgrader := websocket.Upgrader{}
	s := &speakServer{requests: make(chan *http.Request, 1), messages: make(chan string, 16)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests <- r
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.messages <- string(msg)
			if respond && strings.Contains(string(msg), `"Flush"`) {
				_ = conn.WriteMessage(websocket.BinaryMessage, audioFrame)
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Flushed","sequence_id":0}`))
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *speakServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *speakServer) waitForMessage(t *testing.T, fragment string) {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-s.messages:
			if strings.Contains(msg, fragment) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for message containing %q", fragment)
		}
	}
}

type speechRecorder struct {
	started chan struct{}
	ended   chan struct{}
	failed  chan error
}

func newSpeechRecorder() *speechRecorder {
	return &speechRecorder{
		started: make(chan struct{}, 2),
		ended:   make(chan struct{}, 2),
		failed:  make(chan error, 2),
	}
}

func (r *speechRecorder) options() []texttospeech.SpeechOption {
	return []texttospeech.SpeechOption{
		texttospeech.WithStartedCallback(func() { r.started <- struct{}{} }),
		texttospeech.WithEndedCallback(func() { r.ended <- struct{}{} }),
		texttospeech.WithErrorCallback(func(err error) { r.failed <- err }),
	}
}

func pcm(samples ...int16) []byte {
	frame := make([]byte, 2*len(samples))
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(frame[2*i:], uint16(sample))
	}
	return frame
}

func TestSpeakPlaysAudioAndReportsPlaybackEnd(t *testing.T) {
	server := newSpeakServer(t, pcm(1000, -1000), true)
	sink := &fakeSink{}
	synthesizer, err := NewSynthesizer("test-key", sink, WithSpeakURL(server.url()), WithVoice("aura-2-orion-en"))
	if err != nil {
		t.Fatalf("expected synthesizer, got %v", err)
	}

	recorder := newSpeechRecorder()
	opts := append(recorder.options(), texttospeech.WithVolume(0.5))
	if _, err := synthesizer.Speak(context.Background(), "Hello there", opts...); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}

	request := <-server.requests
	if got := request.Header.Get("Authorization"); got != "Token test-key" {
		t.Fatalf("expected token authorization, got %q", got)
	}
	query := request.URL.Query()
	if query.Get("model") != "aura-2-orion-en" || query.Get("encoding") != "linear16" || query.Get("sample_rate") != "16000" {
		t.Fatalf("unexpected speak parameters %v", query)
	}

	server.waitForMessage(t, `"text":"Hello there"`)

	select {
	case <-recorder.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback start")
	}
	select {
	case <-recorder.ended:
	case err := <-recorder.failed:
		t.Fatalf("expected playback to end, got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback end")
	}

	played, _, _ := sink.snapshot()
	expected := pcm(500, -500)
	if string(played) != string(expected) {
		t.Fatalf("expected scaled audio %v, got %v", expected, played)
	}
}

func TestCancelClearsPlaybackWithoutEnding(t *testing.T) {
	server := newSpeakServer(t, pcm(1, 2, 3), true)
	sink := &fakeSink{hold: true}
	synthesizer, err := NewSynthesizer("test-key", sink, WithSpeakURL(server.url()))
	if err != nil {
		t.Fatalf("expected synthesizer, got %v", err)
	}

	recorder := newSpeechRecorder()
	utterance, err := synthesizer.Speak(context.Background(), "a long answer", recorder.options()...)
	if err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}

	select {
	case <-recorder.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback start")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, marks := sink.snapshot(); marks == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for end of utterance mark")
		}
		time.Sleep(time.Millisecond)
	}

	if err := utterance.Cancel(); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if err := utterance.Cancel(); err != nil {
		t.Fatalf("expected repeated cancel to be ignored, got %v", err)
	}

	_, cleared, marks := sink.snapshot()
	if cleared != 1 || marks != 0 {
		t.Fatalf("expected buffer to be cleared once, got cleared=%d marks=%d", cleared, marks)
	}
	select {
	case <-recorder.ended:
		t.Fatalf("expected no end callback after cancel")
	case err := <-recorder.failed:
		t.Fatalf("expected no error callback after cancel, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSpeakReportsDroppedConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for range 2 {
			_, _, _ = conn.ReadMessage()
		}
		conn.Close()
	}))
	defer server.Close()

	synthesizer, err := NewSynthesizer("test-key", &fakeSink{}, WithSpeakURL("ws"+strings.TrimPrefix(server.URL, "http")))
	if err != nil {
		t.Fatalf("expected synthesizer, got %v", err)
	}

	recorder := newSpeechRecorder()
	if _, err := synthesizer.Speak(context.Background(), "hello", recorder.options()...); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}

	select {
	case err := <-recorder.failed:
		if err == nil {
			t.Fatalf("expected a read error, got nil")
		}
	case <-recorder.ended:
		t.Fatalf("expected failure instead of end")
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for failure")
	}
}

func TestSpeakFailsWhenServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	synthesizer, err := NewSynthesizer("test-key", &fakeSink{}, WithSpeakURL("ws"+strings.TrimPrefix(server.URL, "http")))
	if err != nil {
		t.Fatalf("expected synthesizer, got %v", err)
	}
	if _, err := synthesizer.Speak(context.Background(), "hello"); err == nil {
		t.Fatalf("expected speak to fail against a non-websocket endpoint")
	}
}

func TestNewSynthesizerValidatesArguments(t *testing.T) {
	if _, err := NewSynthesizer("", &fakeSink{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewSynthesizer("key", nil); !errors.Is(err, ErrMissingAudioSink) {
		t.Fatalf("expected ErrMissingAudioSink, got %v", err)
	}

	synthesizer, err := NewSynthesizer("key", &fakeSink{})
	if err != nil {
		t.Fatalf("expected synthesizer, got %v", err)
	}
	if !texttospeech.NotifiesPlaybackEnd(synthesizer) {
		t.Fatalf("expected synthesizer to notify playback end")
	}
}
