// Package supabase streams chat completions from the Siva chat edge function
// deployed on Supabase.
package supabase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/siva/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const chatPath = "/functions/v1/chat"

const defaultErrorMessage = "Failed to get response"

var (
	ErrMissingBaseURL = errors.New("supabase base url not set")
	ErrMissingAPIKey  = errors.New("supabase api key not set")
	ErrNoResponseBody = errors.New("no response body")
)

// StatusError is returned when the chat function answers with a non-OK
// status. Message holds the text of the `error` field of the response body.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string { return e.Message }

type Client struct {
	baseURL string
	apiKey  string

	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout bounds the whole request, including reading the streamed body.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func NewClient(baseURL string, apiKey string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
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

func (c *Client) URL() string {
	return c.baseURL + chatPath
}

func (c *Client) PromptWithStream(_ context.Context, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.NewStreamingPromptOptions(opts...)

	return &Stream{
		client:   c,
		messages: toMessages(options.Messages),
		userName: options.UserName,
	}
}
