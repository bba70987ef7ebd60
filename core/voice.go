package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	events "github.com/koscakluka/siva/core/events"
	"github.com/koscakluka/siva/internal/mailbox"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type VoiceState int

const (
	VoiceIdle VoiceState = iota
	VoiceWakeListening
	VoiceActiveListening
	VoiceProcessing
	VoiceSpeaking
)

func (s VoiceState) String() string {
	switch s {
	case VoiceIdle:
		return "idle"
	case VoiceWakeListening:
		return "wake_listening"
	case VoiceActiveListening:
		return "active_listening"
	case VoiceProcessing:
		return "processing"
	case VoiceSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// ErrWakeListeningFailed is reported when listening for the wake phrase
// failed too many times in a row and the loop went idle.
var ErrWakeListeningFailed = errors.New("listening for the wake phrase keeps failing")

var transitionCounter, _ = meter.Int64Counter("siva.voice.transitions",
	metric.WithDescription("Voice session state transitions"))

// messageSender dispatches a captured utterance as a chat request and returns
// the complete assistant reply.
type messageSender interface {
	SendMessage(ctx context.Context, text string, fromVoice bool) (string, error)
}

type voiceMessage interface{ isVoiceMessage() }

type (
	activateMessage   struct{}
	deactivateMessage struct{}
	eventMessage      struct{ event events.Event }
	responseMessage   struct {
		requestID string
		text      string
		err       error
	}
	timerMessage struct {
		seq  int
		kind timerKind
	}
)

func (activateMessage) isVoiceMessage()   {}
func (deactivateMessage) isVoiceMessage() {}
func (eventMessage) isVoiceMessage()      {}
func (responseMessage) isVoiceMessage()   {}
func (timerMessage) isVoiceMessage()      {}

type timerKind int

const (
	timerRestartWake timerKind = iota
	timerAcknowledgement
	timerSpeakingFallback
)

// VoiceController runs the hands-free loop: it waits for the wake phrase,
// captures one command, sends it as a chat message and speaks the reply.
//
// All state is owned by a single goroutine. Everything else, including the
// speech adapters and the in-flight request, only posts messages to it.
type VoiceController struct {
	input  *speechInput
	output *speechOutput
	sender messageSender

	options VoiceOptions
	wake    wakePhrase

	emitEvent   eventEmitter
	reportError func(error)
	unsubscribe func()

	inbox  *mailbox.Mailbox[voiceMessage]
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	stateMu   sync.RWMutex
	published VoiceState

	// Owned by the loop goroutine.
	state             VoiceState
	wakeSession       string
	commandSession    string
	commandTranscript string
	carried           string
	ackUtterance      string
	replyUtterance    string
	wakeFailures      int
	requestID         string
	cancelRequest     context.CancelFunc
	timer             *time.Timer
	timerSeq          int
}

func newVoiceController(input *speechInput, output *speechOutput, sender messageSender, bus *eventBus, options VoiceOptions, reportError func(error)) *VoiceController {
	ctx, cancel := context.WithCancel(context.Background())
	c := &VoiceController{
		input:       input,
		output:      output,
		sender:      sender,
		options:     options,
		wake:        newWakePhrase(options.WakePhrase),
		emitEvent:   bus.emitter(),
		reportError: reportError,
		inbox:       mailbox.New[voiceMessage](),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	if c.reportError == nil {
		c.reportError = func(error) {}
	}

	c.unsubscribe = bus.subscribe(c.observe)
	go c.run()
	return c
}

// State returns the most recently entered state.
func (c *VoiceController) State() VoiceState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	return c.published
}

// Activate starts listening for the wake phrase. It is a no-op while the
// loop is already running. Without speech recognition the controller stays
// idle and ErrSpeechInputUnsupported is returned.
func (c *VoiceController) Activate() error {
	if !c.input.IsSupported() {
		c.reportError(ErrSpeechInputUnsupported)
		return ErrSpeechInputUnsupported
	}
	c.inbox.Post(activateMessage{})
	return nil
}

// Deactivate stops the loop and releases any recognition, playback or
// request it owns.
func (c *VoiceController) Deactivate() {
	c.inbox.Post(deactivateMessage{})
}

// Close deactivates the controller and waits for its goroutine to exit.
func (c *VoiceController) Close() {
	c.cancel()
	<-c.done
}

// observe forwards the events the loop reacts to.
func (c *VoiceController) observe(event events.Event) {
	switch event.(type) {
	case events.UserTranscriptUpdated, events.UserRecognitionEnded, events.AssistantSpeakingStateChanged:
		c.inbox.Post(eventMessage{event: event})
	}
}

func (c *VoiceController) run() {
	defer close(c.done)
	defer c.unsubscribe()

	for {
		select {
		case <-c.ctx.Done():
			c.transition(VoiceIdle)
			return
		case <-c.inbox.Notify():
			for _, message := range c.inbox.Drain() {
				if c.ctx.Err() != nil {
					break
				}
				c.handle(message)
			}
		}
	}
}

func (c *VoiceController) handle(message voiceMessage) {
	switch message := message.(type) {
	case activateMessage:
		if c.state == VoiceIdle {
			c.wakeFailures = 0
			c.transition(VoiceWakeListening)
		}
	case deactivateMessage:
		c.transition(VoiceIdle)
	case eventMessage:
		c.handleEvent(message.event)
	case responseMessage:
		c.handleResponse(message)
	case timerMessage:
		c.handleTimer(message)
	}
}

func (c *VoiceController) handleEvent(event events.Event) {
	switch event := event.(type) {
	case events.UserTranscriptUpdated:
		switch {
		case c.state == VoiceWakeListening && event.SessionID == c.wakeSession:
			c.wakeFailures = 0
			if c.wake.Detect(event.Transcript) {
				logger.Debug("wake phrase detected", "transcript", event.Transcript)
				c.emitEvent(events.NewUserWakePhraseDetected(event.Transcript))
				c.carried = c.wake.Remainder(event.Transcript)
				c.transition(VoiceActiveListening)
			}
		case c.state == VoiceActiveListening && event.SessionID == c.commandSession:
			c.commandTranscript = event.Transcript
		}

	case events.UserRecognitionEnded:
		switch {
		case c.state == VoiceWakeListening && event.SessionID == c.wakeSession:
			c.wakeSession = ""
			if event.Reason == events.RecognitionError {
				c.wakeFailed(event.Err)
				return
			}
			c.scheduleTimer(timerRestartWake, c.options.RestartDelay)
		case c.state == VoiceActiveListening && event.SessionID == c.commandSession:
			command := c.wake.Strip(c.commandTranscript)
			if command == "" {
				command = c.carried
			}
			if command == "" {
				c.transition(VoiceWakeListening)
				return
			}
			c.process(command)
		}

	case events.AssistantSpeakingStateChanged:
		if event.Speaking {
			return
		}
		switch {
		case c.state == VoiceActiveListening && c.ackUtterance != "" && event.UtteranceID == c.ackUtterance:
			c.stopTimer()
			c.ackUtterance = ""
			c.startCommandListening()
		case c.state == VoiceSpeaking && event.UtteranceID == c.replyUtterance:
			c.transition(VoiceWakeListening)
		}
	}
}

func (c *VoiceController) handleResponse(response responseMessage) {
	if c.state != VoiceProcessing || response.requestID != c.requestID {
		return
	}

	if response.err != nil {
		logger.Debug("voice request failed", "request", response.requestID, "error", response.err)
		// A request turned away at the gate was never reported by the sender.
		if errors.Is(response.err, ErrRequestInFlight) {
			c.reportError(response.err)
		}
		c.transition(VoiceWakeListening)
		return
	}

	text := strings.TrimSpace(response.text)
	if text == "" {
		c.transition(VoiceWakeListening)
		return
	}
	c.speak(text)
}

func (c *VoiceController) handleTimer(timer timerMessage) {
	if timer.seq != c.timerSeq {
		return
	}
	c.timer = nil

	switch timer.kind {
	case timerRestartWake:
		if c.state == VoiceWakeListening && c.wakeSession == "" {
			c.startWakeListening()
		}
	case timerAcknowledgement:
		if c.state == VoiceActiveListening && c.ackUtterance != "" {
			c.ackUtterance = ""
			c.startCommandListening()
		}
	case timerSpeakingFallback:
		if c.state == VoiceSpeaking {
			c.transition(VoiceWakeListening)
		}
	}
}

// transition leaves the current state, publishes the new one and enters it.
// Entering WakeListening, ActiveListening and Idle needs no payload; the
// payload carrying states are entered through process and speak.
func (c *VoiceController) transition(to VoiceState) {
	if !c.change(to) {
		return
	}

	switch to {
	case VoiceWakeListening:
		c.carried = ""
		c.startWakeListening()
	case VoiceActiveListening:
		c.startActiveListening()
	}
}

func (c *VoiceController) change(to VoiceState) bool {
	from := c.state
	if from == to {
		return false
	}

	c.leave(from)

	c.state = to
	c.stateMu.Lock()
	c.published = to
	c.stateMu.Unlock()

	logger.Debug("voice state changed", "from", from.String(), "to", to.String())
	transitionCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("voice.from", from.String()),
		attribute.String("voice.to", to.String()),
	))
	c.emitEvent(events.NewVoiceStateChanged(from.String(), to.String()))
	return true
}

// leave stops whatever session belongs to the state being left.
func (c *VoiceController) leave(from VoiceState) {
	c.stopTimer()

	switch from {
	case VoiceWakeListening:
		if c.wakeSession != "" {
			c.wakeSession = ""
			c.input.Stop()
		}
	case VoiceActiveListening:
		c.ackUtterance = ""
		c.commandSession = ""
		c.commandTranscript = ""
		c.input.Stop()
		c.output.Stop()
	case VoiceProcessing:
		if c.cancelRequest != nil {
			c.cancelRequest()
			c.cancelRequest = nil
		}
		c.requestID = ""
	case VoiceSpeaking:
		c.replyUtterance = ""
		c.output.Stop()
	}
}

func (c *VoiceController) startWakeListening() {
	sessionID, err := c.input.StartContinuousWake(c.ctx)
	if err != nil {
		c.wakeFailed(err)
		return
	}
	c.wakeSession = sessionID
}

// wakeFailed reports the first of a run of wake listening failures and goes
// idle once WakeFailureLimit is reached. The run is reset by a transcript
// from a wake session or by activating again.
func (c *VoiceController) wakeFailed(err error) {
	if err == nil {
		err = errors.New("recognition ended unexpectedly")
	}
	c.wakeFailures++
	logger.Warn("wake listening failed", "error", err, "failures", c.wakeFailures)

	if c.wakeFailures >= c.options.WakeFailureLimit {
		c.reportError(fmt.Errorf("%w: %w", ErrWakeListeningFailed, err))
		c.transition(VoiceIdle)
		return
	}
	if c.wakeFailures == 1 {
		c.reportError(err)
	}
	c.scheduleTimer(timerRestartWake, c.options.RestartDelay)
}

// startActiveListening plays the acknowledgement and only then opens the
// microphone, so the acknowledgement is not heard as the command.
func (c *VoiceController) startActiveListening() {
	if c.options.Acknowledgement == "" || !c.output.IsSupported() {
		c.startCommandListening()
		return
	}

	utteranceID, err := c.output.Speak(c.ctx, c.options.Acknowledgement)
	if err != nil {
		logger.Warn("failed to speak acknowledgement", "error", err)
		c.startCommandListening()
		return
	}
	c.ackUtterance = utteranceID

	if !c.output.NotifiesPlaybackEnd() {
		c.scheduleTimer(timerAcknowledgement, c.options.speakingFallback(c.options.Acknowledgement))
	}
}

func (c *VoiceController) startCommandListening() {
	sessionID, err := c.input.StartOneShot(c.ctx)
	if err != nil {
		logger.Warn("failed to start command listening", "error", err)
		c.reportError(err)
		c.transition(VoiceWakeListening)
		return
	}
	c.commandSession = sessionID
	c.commandTranscript = ""
}

func (c *VoiceController) process(command string) {
	c.change(VoiceProcessing)

	requestID := uuid.NewString()
	ctx, cancel := context.WithCancel(c.ctx)
	c.requestID = requestID
	c.cancelRequest = cancel

	go func() {
		defer cancel()
		text, err := c.sender.SendMessage(ctx, command, true)
		c.inbox.Post(responseMessage{requestID: requestID, text: text, err: err})
	}()
}

func (c *VoiceController) speak(text string) {
	if !c.output.IsSupported() {
		c.transition(VoiceWakeListening)
		return
	}

	c.change(VoiceSpeaking)

	utteranceID, err := c.output.Speak(c.ctx, text)
	if err != nil {
		c.reportError(err)
		c.transition(VoiceWakeListening)
		return
	}
	if c.state != VoiceSpeaking {
		return
	}
	c.replyUtterance = utteranceID

	if !c.output.NotifiesPlaybackEnd() {
		c.scheduleTimer(timerSpeakingFallback, c.options.speakingFallback(text))
	}
}

func (c *VoiceController) scheduleTimer(kind timerKind, delay time.Duration) {
	c.stopTimer()

	seq := c.timerSeq
	c.timer = time.AfterFunc(delay, func() {
		c.inbox.Post(timerMessage{seq: seq, kind: kind})
	})
}

func (c *VoiceController) stopTimer() {
	c.timerSeq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
