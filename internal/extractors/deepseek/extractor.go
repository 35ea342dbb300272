// Package deepseek implements the order text extractor on top of the DeepSeek chat completion API.
// DeepSeek speaks the OpenAI wire format, so the OpenAI client is pointed at the DeepSeek base URL.
package deepseek

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/services"
)

const (
	// DefaultModel is the chat model used for order extraction.
	DefaultModel = "deepseek-chat"
	// DefaultTemperature keeps extraction close to deterministic.
	DefaultTemperature = 0.1
	defaultTimeout     = 45 * time.Second
)

var tracer = otel.Tracer("github.com/smartprice/api/internal/extractors/deepseek")

// CallObserver receives per-call latency for metrics.
type CallObserver interface {
	ObserveExtractorCall(extractor, outcome string, elapsed time.Duration)
}

// Option customises the extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(e *Extractor) {
		if model = strings.TrimSpace(model); model != "" {
			e.model = model
		}
	}
}

// WithTimeout bounds each extraction call.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Extractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithObserver registers a latency observer.
func WithObserver(observer CallObserver) Option {
	return func(e *Extractor) {
		e.observer = observer
	}
}

// Extractor calls the chat completion endpoint with JSON output enforced.
type Extractor struct {
	httpClient *http.Client
	model      string
	timeout    time.Duration
	observer   CallObserver
	now        func() time.Time
}

var _ services.TextIntentExtractor = (*Extractor)(nil)

// New constructs an Extractor. Credentials travel with each request, so one Extractor serves every store.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		httpClient: &http.Client{},
		model:      DefaultModel,
		timeout:    defaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Extract sends the catalog and order text in one chat completion and decodes the row list.
func (e *Extractor) Extract(ctx context.Context, req services.ExtractionRequest) (rows []services.ExtractedRow, err error) {
	ctx, span := tracer.Start(ctx, "deepseek.Extract", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("llm.model", e.model),
		attribute.Int("catalog.entries", len(req.Entries)),
	)
	started := e.now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, services.ErrExtractorMalformedResponse):
			outcome = "malformed"
		case err != nil:
			outcome = "unavailable"
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.Int("rows", len(rows)))
		span.End()
		if e.observer != nil {
			e.observer.ObserveExtractorCall("deepseek", outcome, e.now().Sub(started))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	client := openai.NewClientWithConfig(e.clientConfig(req.Credentials))
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: DefaultTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(req.Instructions, req.Entries)},
			{Role: openai.ChatMessageRoleUser, Content: req.Text},
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", services.ErrExtractorMalformedResponse)
	}
	return DecodeRows(resp.Choices[0].Message.Content)
}

func (e *Extractor) clientConfig(creds services.ExtractorCredentials) openai.ClientConfig {
	cfg := openai.DefaultConfig(strings.TrimSpace(creds.APIKey))
	base := strings.TrimRight(strings.TrimSpace(creds.BaseURL), "/")
	if base == "" {
		base = domain.DefaultDeepSeekBaseURL
	}
	cfg.BaseURL = base
	cfg.HTTPClient = e.httpClient
	return cfg
}

// SystemPrompt combines the instructions with the catalog listing the model matches against.
func SystemPrompt(instructions string, entries []services.CatalogEntry) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instructions))
	b.WriteString("\n\nProduct catalog:\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "- %s (ID: %s)\n", entry.Name, entry.ID)
	}
	return b.String()
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", services.ErrExtractorUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: status %d: %v", services.ErrExtractorUnavailable, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("%w: %v", services.ErrExtractorUnavailable, err)
}
