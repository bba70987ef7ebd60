// Package deepgram speaks text through Deepgram's streaming speak API and
// plays the returned audio on an audio sink.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/siva/core/audio"
	"github.com/koscakluka/siva/core/texttospeech"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/siva/core/texttospeech/deepgram"

var logger = otelslog.NewLogger(scopeName)

const (
	DefaultSpeakURL = "wss://api.deepgram.com/v1/speak"
	DefaultVoice    = "aura-2-thalia-en"
)

var (
	ErrMissingAPIKey     = errors.New("deepgram api key not set")
	ErrMissingAudioSink  = errors.New("no audio sink")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

var (
	_ texttospeech.Synthesizer         = (*Synthesizer)(nil)
	_ texttospeech.PlaybackEndNotifier = (*Synthesizer)(nil)
)

// Synthesizer opens one speak socket per utterance. Rate and pitch are not
// supported by the speak endpoint and are ignored, volume is applied to the
// returned samples.
type Synthesizer struct {
	apiKey   string
	sink     audio.Sink
	speakURL string
	voice    string
	dialer   *websocket.Dialer
}

type SynthesizerOption func(*Synthesizer)

func WithSpeakURL(speakURL string) SynthesizerOption {
	return func(s *Synthesizer) { s.speakURL = speakURL }
}

func WithVoice(voice string) SynthesizerOption {
	return func(s *Synthesizer) {
		if voice != "" {
			s.voice = voice
		}
	}
}

func WithDialer(dialer *websocket.Dialer) SynthesizerOption {
	return func(s *Synthesizer) { s.dialer = dialer }
}

func NewSynthesizer(apiKey string, sink audio.Sink, opts ...SynthesizerOption) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if sink == nil {
		return nil, ErrMissingAudioSink
	}

	s := &Synthesizer{
		apiKey:   apiKey,
		sink:     sink,
		speakURL: DefaultSpeakURL,
		voice:    DefaultVoice,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NotifiesPlaybackEnd is always true, the end of an utterance is reported
// through a sink mark placed after its last sample.
func (s *Synthesizer) NotifiesPlaybackEnd() bool { return true }

func (s *Synthesizer) Speak(ctx context.Context, text string, opts ...texttospeech.SpeechOption) (texttospeech.Utterance, error) {
	options := texttospeech.NewSpeechOptions(opts...)

	encoding := s.sink.EncodingInfo()
	if encoding.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, encoding.Format.Name())
	}

	speakURL, err := s.buildSpeakURL(encoding)
	if err != nil {
		return nil, err
	}

	conn, _, err := s.dialer.DialContext(ctx, speakURL, http.Header{"Authorization": {"Token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	u := &utterance{
		id:       uuid.NewString(),
		conn:     conn,
		sink:     s.sink,
		encoding: encoding,
		options:  options,
		done:     make(chan struct{}),
	}

	if err := u.send(speakMessage{Type: "Speak", Text: text}); err != nil {
		u.release()
		return nil, err
	}
	if err := u.send(controlMessage{Type: "Flush"}); err != nil {
		u.release()
		return nil, err
	}

	go u.readMessages(conn)
	go func() {
		select {
		case <-ctx.Done():
			_ = u.Cancel()
		case <-u.done:
		}
	}()

	return u, nil
}

func (s *Synthesizer) buildSpeakURL(encoding audio.EncodingInfo) (string, error) {
	speakURL, err := url.Parse(s.speakURL)
	if err != nil {
		return "", fmt.Errorf("invalid speak url: %w", err)
	}

	queryParams := speakURL.Query()
	queryParams.Set("model", s.voice)
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("container", "none")

	speakURL.RawQuery = queryParams.Encode()
	return speakURL.String(), nil
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type controlMessage struct {
	Type string `json:"type"`
}

type utterance struct {
	id       string
	sink     audio.Sink
	encoding audio.EncodingInfo
	options  texttospeech.SpeechOptions

	// Only touched by the reading goroutine.
	audioBytes int

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu       sync.Mutex
	started  bool
	flushed  bool
	finished bool
	done     chan struct{}
}

func (u *utterance) send(msg any) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	if u.conn == nil {
		return fmt.Errorf("websocket connection closed")
	}
	if err := u.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to deepgram websocket: %w", err)
	}
	return nil
}

func (u *utterance) readMessages(conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			u.mu.Lock()
			flushed := u.flushed
			u.mu.Unlock()
			if flushed {
				return
			}
			u.fail(fmt.Errorf("failed to read deepgram websocket message: %w", err))
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			u.playAudio(msg)
		case websocket.TextMessage:
			u.processMessage(msg)
		}
	}
}

func (u *utterance) playAudio(samples []byte) {
	if len(samples) == 0 || !u.markStarted() {
		return
	}

	u.audioBytes += len(samples)
	audio.ScaleLinear16(samples, u.options.Volume)
	if err := u.sink.SendAudio(samples); err != nil {
		u.fail(fmt.Errorf("failed to play audio: %w", err))
	}
}

// markStarted reports the start of playback once and whether the utterance
// is still live.
func (u *utterance) markStarted() bool {
	u.mu.Lock()
	if u.finished {
		u.mu.Unlock()
		return false
	}
	first := !u.started
	u.started = true
	u.mu.Unlock()

	if first {
		u.options.StartedCallback()
	}
	return true
}

func (u *utterance) processMessage(msg []byte) {
	var parsedMsg struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Debug("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch parsedMsg.Type {
	case "Flushed":
		if !u.markStarted() {
			return
		}
		u.mu.Lock()
		u.flushed = true
		u.mu.Unlock()
		logger.Debug("utterance synthesized", "id", u.id, "duration", u.encoding.Duration(u.audioBytes))

		if err := u.send(controlMessage{Type: "Close"}); err != nil {
			logger.Debug("failed to close deepgram stream", "error", err)
		}
		if err := u.sink.Mark(u.id, func(string) { u.complete() }); err != nil {
			u.fail(fmt.Errorf("failed to mark end of utterance: %w", err))
		}
	case "Warning":
		logger.Warn("deepgram speak warning", "description", parsedMsg.Description)
	case "Error":
		u.fail(fmt.Errorf("deepgram speak error: %s", parsedMsg.Description))
	}
}

func (u *utterance) complete() {
	if !u.end() {
		return
	}
	u.options.EndedCallback()
}

func (u *utterance) fail(err error) {
	if !u.end() {
		return
	}
	u.sink.ClearBuffer()
	u.options.ErrorCallback(err)
}

func (u *utterance) Cancel() error {
	u.mu.Lock()
	live := !u.finished
	u.mu.Unlock()
	if !live {
		return nil
	}

	if err := u.send(controlMessage{Type: "Clear"}); err != nil {
		logger.Debug("failed to clear deepgram stream", "error", err)
	}
	if u.end() {
		u.sink.ClearBuffer()
	}
	return nil
}

func (u *utterance) end() bool {
	u.mu.Lock()
	if u.finished {
		u.mu.Unlock()
		return false
	}
	u.finished = true
	u.mu.Unlock()

	u.release()
	close(u.done)
	return true
}

func (u *utterance) release() {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	if u.conn == nil {
		return
	}
	if err := u.conn.Close(); err != nil {
		logger.Debug("failed to close deepgram websocket", "error", err)
	}
	u.conn = nil
}
