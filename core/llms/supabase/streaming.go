package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/koscakluka/siva/core/llms"
	"github.com/koscakluka/siva/core/llms/sse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	requestCounter, _ = meter.Int64Counter("siva.chat.requests",
		metric.WithDescription("Chat requests sent to the chat function"))
	deltaCounter, _ = meter.Int64Counter("siva.chat.deltas",
		metric.WithDescription("Content deltas received from the chat function"))
)

type Stream struct {
	client *Client

	messages []message
	userName string
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
		ctx, span := tracer.Start(ctx, "prompt chat stream")
		defer span.End()
		span.SetAttributes(attribute.Int("request.messages", len(s.messages)))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		requestBodyBytes, err := json.Marshal(requestBody{
			Messages: s.messages,
			UserName: s.userName,
		})
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.URL(), bytes.NewBuffer(requestBodyBytes))
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
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
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
	statusErr := &StatusError{StatusCode: resp.StatusCode, Message: defaultErrorMessage}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("failed to read error body", "status", resp.Status, "error", err)
		return statusErr
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		logger.Warn("failed to parse error body", "status", resp.Status, "error", err)
		return statusErr
	}
	if parsed.Error != "" {
		statusErr.Message = parsed.Error
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
