package llms

import "context"

// Stream is a lazily started streamed response. Chunks is single-pass, the
// request is issued when the returned sequence is ranged over.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

// Text drains the stream and returns the concatenated content.
func Text(ctx context.Context, stream Stream) (string, error) {
	var text string
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return text, err
		}
		if content, ok := chunk.(StreamContentChunk); ok {
			text += content.Content()
		}
	}
	return text, nil
}
