// Package miniaudio provides microphone capture and speaker playback on top
// of malgo. Playback is pull-based: the device callback asks the application
// to fill each period, which keeps interrupt latency at one period.
package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/voxloop/voxloop-core/core/audio"
)

// Client owns one capture and one playback device on a shared malgo context.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	playbackClient
	captureClient

	encoding audio.EncodingInfo
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
		encoding:     audio.GetDefaultEncodingInfo(),
	}

	if err := client.playbackClient.Init(audioCtx, client.encoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.captureClient.Init(audioCtx, client.encoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

// Stream starts the capture device and blocks until ctx ends. Frames reach
// onAudio on the device's own callback thread.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.captureClient.Start(onAudio); err != nil {
		return err
	}
	<-ctx.Done()
	return c.captureClient.Stop()
}

// StartPlayback starts the playback device; render is invoked once per device
// period with the buffer to fill.
func (c *Client) StartPlayback(_ context.Context, render func(out []byte)) error {
	return c.playbackClient.Start(render)
}

func (c *Client) StopPlayback() error {
	return c.playbackClient.Stop()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
