// Package openai streams chat completions from any OpenAI-compatible
// endpoint (OpenAI, Groq, local llama.cpp servers and the like).
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxloop/voxloop-core/core/llms"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

type Client struct {
	apiKey       string
	baseURL      string
	model        string
	instructions string

	httpClient *http.Client
}

type ClientOption func(*Client)

// WithBaseURL points the client at a different OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithInstructions sets the system prompt sent ahead of the history.
func WithInstructions(instructions string) ClientOption {
	return func(c *Client) {
		c.instructions = instructions
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
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

// Generate prepares a streaming completion for the prompt. The request is not
// sent until the returned stream's Chunks is ranged over.
func (c *Client) Generate(_ context.Context, prompt string, history []llms.Exchange) llms.Stream {
	return &Stream{
		client:   c,
		messages: toMessages(c.instructions, history, prompt),
	}
}

type Stream struct {
	client   *Client
	messages []message
}

func (s *Stream) Chunks(ctx context.Context) func(func(string, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(string, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))

		reqBody := requestBody{
			Model:    s.client.model,
			Messages: s.messages,
			Stream:   true,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield("", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST",
			s.client.baseURL+"/chat/completions", bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield("", err)
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.client.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield("", err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			yield("", err)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			setRequestToFirstTokenTime(span)

			if len(chunk) == 0 {
				continue
			}
			if chunk == endMessage {
				return
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield("", err) {
					return
				}
				continue
			}
			if len(responseBody.Choices) == 0 {
				continue
			}

			choice := responseBody.Choices[0]
			if choice.Delta.Content != "" {
				if !yield(choice.Delta.Content, nil) {
					return
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			err = fmt.Errorf("error reading stream: %w", err)
			span.RecordError(err)
			yield("", err)
		}
	}
}
