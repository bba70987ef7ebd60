// Package portaudio captures and plays 16-bit mono PCM through PortAudio's
// default devices using blocking streams.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/siva/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/siva/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)

var (
	_ audio.Source = (*Client)(nil)
	_ audio.Sink   = (*Client)(nil)
)

type Client struct {
	input  *portaudio.Stream
	output *portaudio.Stream
	in     []int16
	out    []int16

	queue audio.PlaybackQueue

	mu      sync.Mutex
	onAudio func(audio []byte)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient opens the default input and output devices with buffers of
// framesPerBuffer samples and starts moving audio.
func NewClient(framesPerBuffer int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	c := &Client{
		in:  make([]int16, framesPerBuffer),
		out: make([]int16, framesPerBuffer),
	}

	var err error
	if c.input, err = portaudio.OpenDefaultStream(1, 0, audio.DefaultSampleRate, framesPerBuffer, c.in); err != nil {
		c.release()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if c.output, err = portaudio.OpenDefaultStream(0, 1, audio.DefaultSampleRate, framesPerBuffer, c.out); err != nil {
		c.release()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := c.input.Start(); err != nil {
		c.release()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}
	if err := c.output.Start(); err != nil {
		c.release()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(2)
	go c.capture(ctx)
	go c.play(ctx)

	return c, nil
}

func (c *Client) capture(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		if err := c.input.Read(); err != nil {
			logger.Debug("failed to read from input stream", "error", err)
			continue
		}

		c.mu.Lock()
		onAudio := c.onAudio
		c.mu.Unlock()
		if onAudio == nil {
			continue
		}

		buf := bytes.Buffer{}
		if err := binary.Write(&buf, binary.LittleEndian, c.in); err != nil {
			logger.Debug("failed to encode captured audio", "error", err)
			continue
		}
		onAudio(buf.Bytes())
	}
}

func (c *Client) play(ctx context.Context) {
	defer c.wg.Done()

	chunk := make([]byte, len(c.out)*2)
	silence := audio.GetDefaultEncodingInfo().SilenceValue()
	for ctx.Err() == nil {
		c.queue.Read(chunk, silence)
		if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, c.out); err != nil {
			logger.Debug("failed to decode playback audio", "error", err)
			continue
		}
		if err := c.output.Write(); err != nil {
			logger.Debug("failed to write to output stream", "error", err)
		}
	}
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = onAudio
	return nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = nil
	return nil
}

func (c *Client) SendAudio(audio []byte) error {
	c.queue.Push(audio)
	return nil
}

func (c *Client) ClearBuffer() {
	c.queue.Clear()
}

func (c *Client) Mark(name string, callback func(string)) error {
	c.queue.Mark(name, callback)
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.release()
}

func (c *Client) release() {
	for _, stream := range []*portaudio.Stream{c.input, c.output} {
		if stream == nil {
			continue
		}
		_ = stream.Stop()
		if err := stream.Close(); err != nil {
			logger.Debug("failed to close stream", "error", err)
		}
	}
	c.input, c.output = nil, nil
	if err := portaudio.Terminate(); err != nil {
		logger.Debug("failed to terminate portaudio", "error", err)
	}
}
