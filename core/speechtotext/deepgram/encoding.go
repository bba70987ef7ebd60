package deepgram

import (
	"errors"
	"fmt"

	"github.com/koscakluka/siva/core/audio"
)

var ErrUnsupportedEncoding = errors.New("unsupported encoding")

type encodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

type encodingFormat string

func (e encodingFormat) Name() string { return string(e) }

const (
	encodingLinear16 encodingFormat = "linear16"
	encodingALaw     encodingFormat = "alaw"
	encodingMulaw    encodingFormat = "mulaw"
)

// convertEncoding maps capture settings onto what the listen endpoint
// accepts. Companded formats are only accepted at telephone rate.
func convertEncoding(encoding audio.EncodingInfo) (encodingInfo, error) {
	converted := encodingInfo{}
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
		converted.SampleRate = encoding.SampleRate
	default:
		return encodingInfo{}, fmt.Errorf("%w: sample rate %d", ErrUnsupportedEncoding, encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
		converted.Format = encodingLinear16
	case audio.EncodingALaw:
		converted.Format = encodingALaw
	case audio.EncodingMulaw:
		converted.Format = encodingMulaw
	default:
		return encodingInfo{}, fmt.Errorf("%w: format %q", ErrUnsupportedEncoding, encoding.Format.Name())
	}

	if converted.Format != encodingLinear16 && converted.SampleRate != 8000 {
		return encodingInfo{}, fmt.Errorf("%w: %s requires 8000 Hz, got %d", ErrUnsupportedEncoding, converted.Format, converted.SampleRate)
	}

	return converted, nil
}
