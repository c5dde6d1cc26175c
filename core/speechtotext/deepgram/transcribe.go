// Package deepgram transcribes finished utterances through Deepgram's
// pre-recorded listen API. One utterance is one request; there is no
// streaming session to keep alive between turns.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/rest/interfaces"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/voxloop/voxloop-core/core/audio"
)

const listenURL = "https://api.deepgram.com/v1/listen"

type TranscriptionClient struct {
	apiKey   string
	model    string
	encoding audio.EncodingInfo

	httpClient *http.Client
}

type TranscriptionOption func(*TranscriptionClient)

func WithModel(model string) TranscriptionOption {
	return func(c *TranscriptionClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithEncoding overrides the default capture encoding when the input device
// runs at a different rate or format.
func WithEncoding(encoding audio.EncodingInfo) TranscriptionOption {
	return func(c *TranscriptionClient) {
		if !encoding.IsZero() {
			c.encoding = encoding
		}
	}
}

func NewTranscriptionClient(opts ...TranscriptionOption) (*TranscriptionClient, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	client := &TranscriptionClient{
		apiKey:   apiKey,
		model:    "nova-3",
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
	return client, nil
}

// Transcribe sends one utterance's PCM and returns the transcript of the
// first channel's best alternative. An empty transcript is not an error.
func (c *TranscriptionClient) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()
	span.SetAttributes(
		attribute.Int("request.audio_bytes", len(pcm)),
		attribute.Int("request.sample_rate", sampleRate),
		attribute.String("request.model", c.model),
	)

	encoding := c.encoding
	if sampleRate > 0 {
		encoding.SampleRate = sampleRate
	}
	deepgramEncoding, err := convertEncoding(encoding)
	if err != nil {
		err = fmt.Errorf("invalid encoding: %w", err)
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Float64("request.audio_duration",
		encoding.Duration(len(pcm)).Seconds()))

	requestURL, _ := url.Parse(listenURL)
	queryParams := requestURL.Query()
	queryParams.Set("encoding", deepgramEncoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(deepgramEncoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	if language != "" {
		queryParams.Set("language", language)
	}
	queryParams.Set("smart_format", "true")
	requestURL.RawQuery = queryParams.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", requestURL.String(), bytes.NewReader(pcm))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return "", err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, readErr := io.ReadAll(resp.Body); readErr == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return "", err
	}

	var response listenv1rest.PreRecordedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		err = fmt.Errorf("error unmarshalling response: %w", err)
		span.RecordError(err)
		return "", err
	}

	transcript := bestTranscript(&response)
	span.SetAttributes(attribute.Int("response.transcript_length", len(transcript)))
	logger.DebugContext(ctx, "transcription finished", "transcript_length", len(transcript))
	return transcript, nil
}

func bestTranscript(response *listenv1rest.PreRecordedResponse) string {
	if response.Results == nil || len(response.Results.Channels) == 0 {
		return ""
	}
	alternatives := response.Results.Channels[0].Alternatives
	if len(alternatives) == 0 {
		return ""
	}
	return alternatives[0].Transcript
}
