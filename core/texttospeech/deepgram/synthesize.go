// Package deepgram synthesizes one phrase per request over Deepgram's speak
// websocket. A failed or cancelled phrase only costs that phrase; the
// connection is never shared between phrases.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/texttospeech"
)

type TextToSpeechClient struct {
	apiKey   string
	encoding audio.EncodingInfo
}

type ClientOption func(*TextToSpeechClient)

// WithEncoding sets the PCM format requested from the speak API. It must
// match the playback device.
func WithEncoding(encoding audio.EncodingInfo) ClientOption {
	return func(c *TextToSpeechClient) {
		if !encoding.IsZero() {
			c.encoding = encoding
		}
	}
}

func NewTextToSpeechClient(opts ...ClientOption) (*TextToSpeechClient, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	client := &TextToSpeechClient{
		apiKey:   apiKey,
		encoding: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Synthesize converts one phrase to raw PCM. The speak API has no speed
// control, so the speed option is accepted and ignored.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize phrase")
	defer span.End()
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	options := texttospeech.SynthesisOptions{Voice: defaultVoice}
	for _, opt := range opts {
		opt(&options)
	}
	span.SetAttributes(attribute.String("request.voice", options.Voice))

	conn, err := c.connectWebsocket(ctx, options.Voice)
	if err != nil {
		err = fmt.Errorf("failed to open websocket: %w", err)
		span.RecordError(err)
		return nil, err
	}
	defer conn.Close()

	// A cancelled context tears the connection down, which unblocks the read
	// loop below.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-readDone:
		}
	}()

	if err := conn.WriteJSON(speakMsg(text)); err != nil {
		err = fmt.Errorf("failed to send websocket speak message: %w", err)
		span.RecordError(err)
		return nil, err
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		err = fmt.Errorf("failed to send websocket flush message: %w", err)
		span.RecordError(err)
		return nil, err
	}

	var pcm []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				span.RecordError(ctx.Err())
				return nil, ctx.Err()
			}
			err = fmt.Errorf("websocket read error: %w", err)
			span.RecordError(err)
			return nil, err
		}

		switch msgType {
		case websocket.BinaryMessage:
			pcm = append(pcm, msg...)

		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Warn("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				// Everything for this phrase has arrived.
				_ = conn.WriteJSON(closeMsg)
				span.SetAttributes(attribute.Int("response.audio_bytes", len(pcm)))
				return pcm, nil
			case "Warning", "Error":
				logger.Warn("deepgram speak reported a problem", "message", string(msg))
			}
		}
	}
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context, voice string) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("encoding", c.encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	urlValues.Set("model", voice)
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		(&url.URL{
			Scheme: "wss",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

type websocketMessage struct {
	Type string `json:"type"`
}

func speakMsg(text string) struct {
	Type string `json:"type"`
	Text string `json:"text"`
} {
	return struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "Speak", Text: text}
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)
