// Package gemini reads price tables out of photographs using the Gemini generateContent API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/smartprice/api/internal/services"
)

const (
	// DefaultModel is the vision model used for table extraction.
	DefaultModel             = "gemini-2.5-flash"
	defaultTimeout           = 60 * time.Second
	defaultMaxImageDimension = 2048
)

// TablePrompt is sent alongside the image.
const TablePrompt = `Analyze this image of a price list table and extract every product row.
The table usually has a name column followed by purchase, wholesale, retail floor and retail prices.
Prices may be listed per box (箱) and per item (个). When a column is per box use the *_box field,
when it is per item use the *_item field. When only one price is listed for a tier, treat it as the box price.
Return a JSON array.`

var tracer = otel.Tracer("github.com/smartprice/api/internal/extractors/gemini")

// CallObserver receives per-call latency for metrics.
type CallObserver interface {
	ObserveExtractorCall(extractor, outcome string, elapsed time.Duration)
}

// Option customises the extractor.
type Option func(*Extractor)

// WithModel overrides the model resource name.
func WithModel(model string) Option {
	return func(e *Extractor) {
		if model = strings.TrimPrefix(strings.TrimSpace(model), "models/"); model != "" {
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

// WithMaxImageDimension sets the longest edge images are downscaled to before upload.
func WithMaxImageDimension(pixels int) Option {
	return func(e *Extractor) {
		if pixels > 0 {
			e.maxDimension = pixels
		}
	}
}

// WithBaseURL points the client at another Gemini API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(e *Extractor) {
		e.baseURL = strings.TrimSpace(baseURL)
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		e.httpClient = client
	}
}

// WithObserver registers a latency observer.
func WithObserver(observer CallObserver) Option {
	return func(e *Extractor) {
		e.observer = observer
	}
}

// Extractor implements services.TableImageExtractor.
type Extractor struct {
	model        string
	timeout      time.Duration
	maxDimension int
	baseURL      string
	httpClient   *http.Client
	observer     CallObserver
	now          func() time.Time
}

var _ services.TableImageExtractor = (*Extractor)(nil)

// New constructs an Extractor. The API key comes with each request.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		model:        DefaultModel,
		timeout:      defaultTimeout,
		maxDimension: defaultMaxImageDimension,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// ExtractPriceTable uploads the (downscaled) image with a response schema and decodes the rows.
func (e *Extractor) ExtractPriceTable(ctx context.Context, req services.ImageExtractionRequest) (rows []services.RawPriceRow, err error) {
	ctx, span := tracer.Start(ctx, "gemini.ExtractPriceTable", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("llm.model", e.model), attribute.Int("image.bytes", len(req.Data)))
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
		span.End()
		if e.observer != nil {
			e.observer.ObserveExtractorCall("gemini", outcome, e.now().Sub(started))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	image := prepareImage(req.Data, req.MIMEType, e.maxDimension)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(req.Credentials.APIKey),
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  e.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: e.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", services.ErrExtractorUnavailable, err)
	}

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(image.data, image.mimeType),
		genai.NewPartFromText(TablePrompt),
	}, genai.RoleUser)}
	resp, err := client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   tableSchema(),
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return decodeResponse(resp)
}

func tableSchema() *genai.Schema {
	properties := map[string]*genai.Schema{
		"name": {Type: genai.TypeString},
	}
	for _, field := range priceFields {
		properties[field] = &genai.Schema{Type: genai.TypeNumber}
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: properties,
			Required:   []string{"name"},
		},
	}
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", services.ErrExtractorUnavailable, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", services.ErrExtractorUnavailable, err)
}
