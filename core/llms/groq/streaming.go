// Package groq streams chat completions from Groq, or any endpoint speaking
// the OpenAI chat completions protocol, straight from the client.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/siva/core/llms"
	"github.com/koscakluka/siva/core/llms/sse"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel = "llama-3.3-70b-versatile"

	DefaultSystemPrompt = "You are Siva, a friendly and helpful AI assistant. " +
		"You are talking with " + userNamePlaceholder + ". " +
		"Keep answers short and conversational, they may be read aloud."
)

var (
	ErrMissingAPIKey  = errors.New("groq api key not set")
	ErrNoResponseBody = errors.New("no response body")
)

var (
	requestCounter, _ = meter.Int64Counter("siva.chat.requests",
		metric.WithDescription("Chat requests sent to the completions endpoint"))
	deltaCounter, _ = meter.Int64Counter("siva.chat.deltas",
		metric.WithDescription("Content deltas received from the completions endpoint"))
)

// StatusError is returned when the endpoint answers with a non-OK status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion failed with status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	apiKey       string
	url          string
	model        string
	systemPrompt string

	httpClient *http.Client
}

type ClientOption func(*Client)

func WithURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.url = url
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

// WithSystemPrompt replaces [DefaultSystemPrompt]. Occurrences of
// "{userName}" are replaced with the name of the user.
func WithSystemPrompt(prompt string) ClientOption {
	return func(c *Client) { c.systemPrompt = prompt }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := &Client{
		apiKey:       apiKey,
		url:          DefaultURL,
		model:        DefaultModel,
		systemPrompt: DefaultSystemPrompt,
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

func (c *Client) PromptWithStream(_ context.Context, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.NewStreamingPromptOptions(opts...)

	return &Stream{
		client:   c,
		messages: toMessages(c.systemPrompt, options.UserName, options.Messages),
	}
}

type Stream struct {
	client   *Client
	messages []message
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(
			attribute.String("request.model", s.client.model),
			attribute.Int("request.messages", len(s.messages)),
		)

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		requestBodyBytes, err := json.Marshal(requestBody{
			Model:    s.client.model,
			Messages: s.messages,
			Stream:   true,
		})
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.client.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		requestCounter.Add(ctx, 1)
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			fail(readStatusError(resp))
			return
		}
		if resp.Body == nil || resp.Body == http.NoBody {
			fail(ErrNoResponseBody)
			return
		}

		deltas := 0
		defer func() { span.SetAttributes(attribute.Int("response.deltas", deltas)) }()
		for delta, err := range sse.Deltas(resp.Body) {
			setRequestToFirstTokenTime(span)
			if err != nil {
				fail(err)
				return
			}

			deltas++
			deltaCounter.Add(ctx, 1)
			if !yield(StreamContentChunk{content: delta}, nil) {
				return
			}
		}
	}
}

func readStatusError(resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode, Message: resp.Status}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("failed to read error body", "status", resp.Status, "error", err)
		return statusErr
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		logger.Debug("error body is not json", "status", resp.Status, "body", string(body))
		if text := strings.TrimSpace(string(body)); text != "" {
			statusErr.Message = text
		}
		return statusErr
	}
	if parsed.Error.Message != "" {
		statusErr.Message = parsed.Error.Message
	}
	return statusErr
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}
