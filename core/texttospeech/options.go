package texttospeech

import "github.com/koscakluka/siva/core/audio"

const (
	DefaultRate   = 1.0
	DefaultPitch  = 1.0
	DefaultVolume = 1.0
)

type SpeechOptions struct {
	// Rate, Pitch and Volume are relative to the engine default of 1.0. Not
	// every engine supports all of them.
	Rate   float64
	Pitch  float64
	Volume float64

	// StartedCallback is called once playback of the utterance starts.
	StartedCallback func()
	// EndedCallback is called once the utterance finished playing. Engines
	// that cannot tell when playback ends report it through
	// [PlaybackEndNotifier].
	EndedCallback func()
	// ErrorCallback is called instead of EndedCallback when synthesis or
	// playback fails.
	ErrorCallback func(error)

	EncodingInfo audio.EncodingInfo
}

type SpeechOption func(*SpeechOptions)

func WithRate(rate float64) SpeechOption {
	return func(o *SpeechOptions) {
		if rate > 0 {
			o.Rate = rate
		}
	}
}

func WithPitch(pitch float64) SpeechOption {
	return func(o *SpeechOptions) {
		if pitch > 0 {
			o.Pitch = pitch
		}
	}
}

func WithVolume(volume float64) SpeechOption {
	return func(o *SpeechOptions) {
		if volume >= 0 && volume <= 1 {
			o.Volume = volume
		}
	}
}

func WithStartedCallback(callback func()) SpeechOption {
	return func(o *SpeechOptions) { o.StartedCallback = callback }
}

func WithEndedCallback(callback func()) SpeechOption {
	return func(o *SpeechOptions) { o.EndedCallback = callback }
}

func WithErrorCallback(callback func(error)) SpeechOption {
	return func(o *SpeechOptions) { o.ErrorCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SpeechOption {
	return func(o *SpeechOptions) {
		if encodingInfo.IsZero() {
			// TODO: Issue warning
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

// NewSpeechOptions applies opts over the defaults. Callbacks are never nil
// in the result.
func NewSpeechOptions(opts ...SpeechOption) SpeechOptions {
	options := SpeechOptions{
		Rate:            DefaultRate,
		Pitch:           DefaultPitch,
		Volume:          DefaultVolume,
		StartedCallback: func() {},
		EndedCallback:   func() {},
		ErrorCallback:   func(error) {},
		EncodingInfo:    audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.StartedCallback == nil {
		options.StartedCallback = func() {}
	}
	if options.EndedCallback == nil {
		options.EndedCallback = func() {}
	}
	if options.ErrorCallback == nil {
		options.ErrorCallback = func(error) {}
	}
	return options
}
