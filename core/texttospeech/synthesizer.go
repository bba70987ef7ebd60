// Package texttospeech defines the speech synthesis capability the assistant
// talks through.
package texttospeech

import "context"

// Synthesizer speaks text. At most one utterance is expected to play at a
// time; callers cancel the previous one before speaking again.
type Synthesizer interface {
	Speak(ctx context.Context, text string, opts ...SpeechOption) (Utterance, error)
}

// Utterance is a handle to a queued or playing utterance.
type Utterance interface {
	// Cancel stops playback immediately. No callbacks are invoked after
	// Cancel returns. Repeated calls are ignored.
	Cancel() error
}

// PlaybackEndNotifier is implemented by synthesizers that can report whether
// EndedCallback fires when audio actually stops playing. Synthesizers that do
// not implement it are assumed not to.
type PlaybackEndNotifier interface {
	NotifiesPlaybackEnd() bool
}

// NotifiesPlaybackEnd reports whether s calls EndedCallback at the end of
// playback.
func NotifiesPlaybackEnd(s Synthesizer) bool {
	notifier, ok := s.(PlaybackEndNotifier)
	return ok && notifier.NotifiesPlaybackEnd()
}
