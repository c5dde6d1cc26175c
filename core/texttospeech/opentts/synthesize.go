// Package opentts synthesizes phrases through a self-hosted OpenTTS server.
// The server answers with a WAV file; the client strips the container and
// hands back raw 16-bit PCM at the requested sample rate.
package opentts

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/texttospeech"
)

const defaultBaseURL = "http://127.0.0.1:5500/api/tts"

type TextToSpeechClient struct {
	baseURL  string
	language string
	encoding audio.EncodingInfo

	httpClient *http.Client
}

type ClientOption func(*TextToSpeechClient)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *TextToSpeechClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TextToSpeechClient) {
		if language != "" {
			c.language = language
		}
	}
}

// WithEncoding sets the sample rate requested from the server. It must match
// the playback device.
func WithEncoding(encoding audio.EncodingInfo) ClientOption {
	return func(c *TextToSpeechClient) {
		if !encoding.IsZero() {
			c.encoding = encoding
		}
	}
}

func NewTextToSpeechClient(opts ...ClientOption) *TextToSpeechClient {
	client := &TextToSpeechClient{
		baseURL:  defaultBaseURL,
		language: "en",
		encoding: audio.GetDefaultEncodingInfo(),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Synthesize requests one phrase as WAV and returns its PCM payload. OpenTTS
// has no playback rate parameter, so the speed option is accepted and
// ignored.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize phrase")
	defer span.End()
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	options := texttospeech.SynthesisOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	span.SetAttributes(attribute.String("request.voice", options.Voice))

	requestURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	queryParams := requestURL.Query()
	queryParams.Set("voice", options.Voice)
	queryParams.Set("lang", c.language)
	queryParams.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	queryParams.Set("vocoder", "high")
	queryParams.Set("denoiserStrength", "0.005")
	queryParams.Set("ssml", "false")
	queryParams.Set("cache", "false")
	queryParams.Set("text", text)
	requestURL.RawQuery = queryParams.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL.String(), nil)
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return nil, err
	}

	pcm, err := extractWAVData(bufio.NewReader(resp.Body))
	if err != nil {
		err = fmt.Errorf("error parsing WAV response: %w", err)
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.audio_bytes", len(pcm)))
	logger.DebugContext(ctx, "synthesis finished", "audio_bytes", len(pcm))
	return pcm, nil
}

// extractWAVData walks the RIFF chunks and returns the contents of the data
// chunk.
func extractWAVData(r io.Reader) ([]byte, error) {
	riff := make([]byte, 12)
	if _, err := io.ReadFull(r, riff); err != nil {
		return nil, fmt.Errorf("reading RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	for {
		header := make([]byte, 8)
		if _, err := io.ReadFull(r, header); err != nil {
			return nil, fmt.Errorf("reading chunk header: %w", err)
		}
		id := string(header[0:4])
		size := binary.LittleEndian.Uint32(header[4:8])

		if id == "data" {
			pcm := make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, fmt.Errorf("reading data chunk: %w", err)
			}
			return pcm, nil
		}

		// Chunks are word-aligned; odd sizes carry a pad byte.
		skip := int64(size)
		if size%2 == 1 {
			skip++
		}
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("skipping %s chunk: %w", id, err)
		}
	}
}
