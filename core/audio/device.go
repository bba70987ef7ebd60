package audio

import "context"

// Source delivers captured microphone audio. Only one consumer is attached
// at a time, starting a capture replaces the previous callback.
type Source interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() EncodingInfo
}

// Sink plays audio. Mark registers a callback that is called once
// everything sent before it has been played, ClearBuffer drops queued audio
// and pending marks without calling them.
type Sink interface {
	SendAudio(audio []byte) error
	ClearBuffer()
	Mark(name string, callback func(string)) error
	EncodingInfo() EncodingInfo
}
