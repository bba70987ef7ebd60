// Package deepgram recognizes speech captured from an audio source through
// Deepgram's streaming listen API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/siva/core/audio"
	"github.com/koscakluka/siva/core/speechtotext"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/siva/core/speechtotext/deepgram"

var logger = otelslog.NewLogger(scopeName)

const (
	DefaultListenURL       = "wss://api.deepgram.com/v1/listen"
	DefaultModel           = "nova-3"
	DefaultNoSpeechTimeout = 8 * time.Second
)

var (
	ErrMissingAPIKey      = errors.New("deepgram api key not set")
	ErrMissingAudioSource = errors.New("no audio source")
	ErrNoSpeech           = errors.New("no speech detected")
)

var _ speechtotext.Recognizer = (*Recognizer)(nil)

type Recognizer struct {
	apiKey          string
	source          audio.Source
	listenURL       string
	model           string
	noSpeechTimeout time.Duration
	dialer          *websocket.Dialer
}

type RecognizerOption func(*Recognizer)

func WithListenURL(listenURL string) RecognizerOption {
	return func(r *Recognizer) { r.listenURL = listenURL }
}

func WithModel(model string) RecognizerOption {
	return func(r *Recognizer) { r.model = model }
}

// WithNoSpeechTimeout ends one-shot sessions that hear nothing for timeout.
// Zero disables it.
func WithNoSpeechTimeout(timeout time.Duration) RecognizerOption {
	return func(r *Recognizer) { r.noSpeechTimeout = timeout }
}

func WithDialer(dialer *websocket.Dialer) RecognizerOption {
	return func(r *Recognizer) { r.dialer = dialer }
}

func NewRecognizer(apiKey string, source audio.Source, opts ...RecognizerOption) (*Recognizer, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if source == nil {
		return nil, ErrMissingAudioSource
	}

	r := &Recognizer{
		apiKey:          apiKey,
		source:          source,
		listenURL:       DefaultListenURL,
		model:           DefaultModel,
		noSpeechTimeout: DefaultNoSpeechTimeout,
		dialer:          websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Recognize opens a listen socket and streams captured audio into it until
// the session ends or is stopped.
func (r *Recognizer) Recognize(ctx context.Context, opts ...speechtotext.RecognitionOption) (speechtotext.Recognition, error) {
	options := speechtotext.NewRecognitionOptions(opts...)

	encoding, err := convertEncoding(r.source.EncodingInfo())
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	listenURL, err := r.buildListenURL(options, encoding)
	if err != nil {
		return nil, err
	}

	conn, _, err := r.dialer.DialContext(ctx, listenURL, http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	session := newRecognition(conn, r.source, options)
	if err := r.source.StartCapture(ctx, session.sendAudio); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start audio capture: %w", err)
	}

	if !options.Continuous && r.noSpeechTimeout > 0 {
		session.startNoSpeechTimer(r.noSpeechTimeout)
	}

	go session.readMessages(conn)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Stop()
		case <-session.done:
		}
	}()

	return session, nil
}

func (r *Recognizer) buildListenURL(options speechtotext.RecognitionOptions, encoding encodingInfo) (string, error) {
	listenURL, err := url.Parse(r.listenURL)
	if err != nil {
		return "", fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", r.model)
	queryParams.Set("language", options.Locale)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", strconv.FormatBool(options.InterimResults))
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	if options.InterimResults {
		queryParams.Set("utterance_end_ms", "1000")
	}

	listenURL.RawQuery = queryParams.Encode()
	return listenURL.String(), nil
}

type recognition struct {
	conn    *websocket.Conn
	source  audio.Source
	options speechtotext.RecognitionOptions

	writeMu sync.Mutex

	mu         sync.Mutex
	transcript transcriptState
	finished   bool
	timer      *time.Timer
	done       chan struct{}
}

func newRecognition(conn *websocket.Conn, source audio.Source, options speechtotext.RecognitionOptions) *recognition {
	return &recognition{
		conn:    conn,
		source:  source,
		options: options,
		done:    make(chan struct{}),
	}
}

func (s *recognition) startNoSpeechTimer(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = time.AfterFunc(timeout, func() { s.finish(ErrNoSpeech) })
}

func (s *recognition) sendAudio(audio []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		logger.Debug("failed to write audio to deepgram", "error", err)
	}
}

func (s *recognition) readMessages(conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.finish(nil)
			} else {
				s.finish(fmt.Errorf("failed to read deepgram websocket message: %w", err))
			}
			return
		}
		if msgType == websocket.TextMessage {
			s.processMessage(msg)
		}
	}
}

func (s *recognition) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Debug("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Debug("failed to unmarshal deepgram results", "error", err)
			return
		}

		var text string
		if len(msgResp.Channel.Alternatives) > 0 {
			text = msgResp.Channel.Alternatives[0].Transcript
		}
		s.update(func(t *transcriptState) (bool, bool) {
			return t.apply(text, msgResp.IsFinal, msgResp.SpeechFinal)
		})

	case api.TypeUtteranceEndResponse:
		s.update(func(t *transcriptState) (bool, bool) {
			return false, t.hasFinal()
		})
	}
}

// update applies a transcript change and reports it. A finished utterance
// ends one-shot sessions, continuous sessions start a fresh transcript.
func (s *recognition) update(apply func(*transcriptState) (changed, utteranceEnded bool)) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	changed, utteranceEnded := apply(&s.transcript)
	transcript := s.transcript.text()
	if changed && transcript != "" && s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if utteranceEnded && s.options.Continuous {
		s.transcript = transcriptState{}
	}
	s.mu.Unlock()

	if changed {
		s.options.TranscriptCallback(transcript)
	}
	if utteranceEnded && !s.options.Continuous {
		s.finish(nil)
	}
}

// finish ends the session on the engine's behalf and reports it.
func (s *recognition) finish(err error) {
	if !s.end() {
		return
	}
	s.options.EndedCallback(err)
}

func (s *recognition) Stop() error {
	s.end()
	return nil
}

func (s *recognition) end() bool {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return false
	}
	s.finished = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.release()
	close(s.done)
	return true
}

func (s *recognition) release() {
	if s.source != nil {
		if err := s.source.StopCapture(); err != nil {
			logger.Debug("failed to stop audio capture", "error", err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		logger.Debug("failed to close deepgram stream", "error", err)
	}
	if err := s.conn.Close(); err != nil {
		logger.Debug("failed to close deepgram websocket", "error", err)
	}
	s.conn = nil
}

// transcriptState joins finalized segments of the current utterance with the
// latest interim segment.
type transcriptState struct {
	finals  []string
	interim string
}

func (t *transcriptState) apply(text string, isFinal, speechFinal bool) (changed, utteranceEnded bool) {
	text = strings.TrimSpace(text)
	before := t.text()

	if isFinal {
		if text != "" {
			t.finals = append(t.finals, text)
		}
		t.interim = ""
	} else {
		t.interim = text
	}

	return t.text() != before, isFinal && speechFinal && t.hasFinal()
}

func (t *transcriptState) hasFinal() bool {
	return len(t.finals) > 0
}

func (t *transcriptState) text() string {
	parts := t.finals
	if t.interim != "" {
		parts = append(parts[:len(parts):len(parts)], t.interim)
	}
	return strings.Join(parts, " ")
}
