package speechtotext

import "github.com/koscakluka/siva/core/audio"

const DefaultLocale = "en-US"

type RecognitionOptions struct {
	// Locale is the single language recognised, e.g. "en-US".
	Locale string
	// InterimResults enables transcript updates before the utterance is final.
	InterimResults bool
	// Continuous keeps the session open across utterances. A one-shot
	// session ends on its own after the first finished utterance.
	Continuous bool

	// TranscriptCallback receives the full best-effort transcript of the
	// session every time it changes. Each call replaces the previous one.
	TranscriptCallback func(transcript string)
	// EndedCallback is called exactly once when the session ends by itself,
	// with a non-nil error if the engine failed. It is not called for
	// sessions ended through [Recognition.Stop].
	EndedCallback func(err error)

	EncodingInfo audio.EncodingInfo
}

type RecognitionOption func(*RecognitionOptions)

func WithLocale(locale string) RecognitionOption {
	return func(o *RecognitionOptions) {
		if locale != "" {
			o.Locale = locale
		}
	}
}

func WithInterimResults(enabled bool) RecognitionOption {
	return func(o *RecognitionOptions) { o.InterimResults = enabled }
}

func WithContinuous(continuous bool) RecognitionOption {
	return func(o *RecognitionOptions) { o.Continuous = continuous }
}

func WithTranscriptCallback(callback func(transcript string)) RecognitionOption {
	return func(o *RecognitionOptions) { o.TranscriptCallback = callback }
}

func WithEndedCallback(callback func(err error)) RecognitionOption {
	return func(o *RecognitionOptions) { o.EndedCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) RecognitionOption {
	return func(o *RecognitionOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

// NewRecognitionOptions applies opts over the defaults. Callbacks are never
// nil in the result.
func NewRecognitionOptions(opts ...RecognitionOption) RecognitionOptions {
	options := RecognitionOptions{
		Locale:             DefaultLocale,
		InterimResults:     true,
		TranscriptCallback: func(string) {},
		EndedCallback:      func(error) {},
		EncodingInfo:       audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.TranscriptCallback == nil {
		options.TranscriptCallback = func(string) {}
	}
	if options.EndedCallback == nil {
		options.EndedCallback = func(error) {}
	}
	return options
}
