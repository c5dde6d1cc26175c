// Package portaudio is an alternative capture backend for systems where the
// miniaudio capture device misbehaves. It is capture-only; playback stays on
// miniaudio.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/voxloop/voxloop-core/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in []int16
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.DefaultSampleRate, bufferSize, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
	}, nil
}

// Stream reads capture buffers until ctx ends, delivering little-endian
// 16-bit PCM to onAudio.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return c.stream.Stop()
		default:
			if err := c.stream.Read(); err != nil {
				return fmt.Errorf("failed to read from portaudio stream: %w", err)
			}

			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}
}

func (c *Client) Close() {
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
