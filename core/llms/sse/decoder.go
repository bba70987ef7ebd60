// Package sse decodes the line-oriented server-sent event stream returned by
// chat completion endpoints into assistant text deltas.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync/atomic"
)

const (
	commentPrefix = ":"
	dataPrefix    = "data: "
	doneSentinel  = "[DONE]"

	readSize = 4096
)

// ErrConsumed is yielded when a decoded sequence is ranged over a second time.
var ErrConsumed = errors.New("stream already consumed")

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type lineKind int

const (
	lineSkipped lineKind = iota
	lineDelta
	lineDone
)

// Deltas returns a lazy sequence of text deltas read from r.
//
// The sequence ends when r is exhausted or the [DONE] sentinel is seen,
// whichever comes first. Complete lines that fail to parse are skipped, a
// trailing fragment without a newline is discarded. Read errors are yielded
// once and end the sequence.
func Deltas(r io.Reader) iter.Seq2[string, error] {
	consumed := atomic.Bool{}
	return func(yield func(string, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield("", ErrConsumed)
			return
		}

		var buffer []byte
		chunk := make([]byte, readSize)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				buffer = append(buffer, chunk[:n]...)
				for {
					newlineIndex := bytes.IndexByte(buffer, '\n')
					if newlineIndex < 0 {
						break
					}
					line := string(buffer[:newlineIndex])
					buffer = buffer[newlineIndex+1:]

					delta, kind := parseLine(line)
					switch kind {
					case lineDone:
						return
					case lineDelta:
						if !yield(delta, nil) {
							return
						}
					}
				}
			}

			if errors.Is(err, io.EOF) {
				if len(buffer) > 0 {
					logger.Debug("discarding unterminated stream line", "length", len(buffer))
				}
				return
			} else if err != nil {
				yield("", fmt.Errorf("error reading streamed response: %w", err))
				return
			}
		}
	}
}

func parseLine(line string) (string, lineKind) {
	line = strings.TrimSuffix(line, "\r")
	if strings.HasPrefix(line, commentPrefix) || strings.TrimSpace(line) == "" {
		return "", lineSkipped
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", lineSkipped
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneSentinel {
		return "", lineDone
	}

	var responseBody streamingResponseBody
	if err := json.Unmarshal([]byte(payload), &responseBody); err != nil {
		logger.Debug("skipping malformed stream line", "error", err)
		return "", lineSkipped
	}

	if len(responseBody.Choices) == 0 {
		return "", lineSkipped
	}
	content := responseBody.Choices[0].Delta.Content
	if content == nil || *content == "" {
		return "", lineSkipped
	}

	return *content, lineDelta
}
