package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// OrderExtractionInstructions is the fixed task description sent with every extraction request.
const OrderExtractionInstructions = `You are an order parser for a wholesale shop.
Extract product quantities in boxes (箱) and individual items (个) from the user's message.

Rules:
1. Fuzzy match every product mention in the message against the catalog names.
2. Record box and item quantities independently. One mention may carry both:
   - "5箱" -> quantityBox: 5, quantityItem: 0
   - "3个" -> quantityBox: 0, quantityItem: 3
   - "5箱3个" or "5箱零3个" -> quantityBox: 5, quantityItem: 3
   - "100" with no unit -> treat as boxes -> quantityBox: 100, quantityItem: 0
3. productId must be copied exactly from the catalog. Never invent an id and never return a name instead.
4. Respond with a JSON object holding an "items" array. Each element has
   "productId" (string), "quantityBox" (number, default 0) and "quantityItem" (number, default 0).

Example:
{"items":[{"productId":"123","quantityBox":5,"quantityItem":2},{"productId":"456","quantityBox":0,"quantityItem":10}]}`

// Outcome labels reported to the ResolutionObserver.
const (
	ResolutionOutcomeEmpty         = "empty"
	ResolutionOutcomeOK            = "ok"
	ResolutionOutcomeNotConfigured = "not_configured"
	ResolutionOutcomeUnavailable   = "unavailable"
	ResolutionOutcomeMalformed     = "malformed"

	DroppedRowUnresolved   = "unresolved"
	DroppedRowZeroQuantity = "zero_quantity"
)

// TextIntentExtractor is the remote capability that understands order text. Implementations
// wrap ErrExtractorUnavailable or ErrExtractorMalformedResponse so the engine can classify failures.
type TextIntentExtractor interface {
	Extract(ctx context.Context, req ExtractionRequest) ([]ExtractedRow, error)
}

// ExtractorCredentials authenticate an extractor call.
type ExtractorCredentials struct {
	APIKey  string
	BaseURL string
}

// CatalogEntry is the (id, name) pair the extractor matches against.
type CatalogEntry struct {
	ID   string
	Name string
}

// ExtractionRequest is everything the extractor receives.
type ExtractionRequest struct {
	Entries      []CatalogEntry
	Instructions string
	Text         string
	Credentials  ExtractorCredentials
}

// ExtractedRow is one candidate line as returned by the extractor. Nil quantities were absent.
type ExtractedRow struct {
	ProductID    string
	QuantityBox  *float64
	QuantityItem *float64
}

// ErrExtractorUnavailable is wrapped by extractors on transport or non-success responses.
var ErrExtractorUnavailable = errors.New("extractor: unavailable")

// ErrExtractorMalformedResponse is wrapped by extractors when the response does not fit the row schema.
var ErrExtractorMalformedResponse = errors.New("extractor: malformed response")

// ResolutionObserver receives resolution telemetry.
type ResolutionObserver interface {
	ObserveResolution(outcome string, elapsed time.Duration)
	ObserveDroppedRow(reason string)
}

// OrderResolutionServiceDeps wires the extractor used for order resolution.
type OrderResolutionServiceDeps struct {
	Extractor    TextIntentExtractor
	Instructions string
	Observer     ResolutionObserver
	Clock        func() time.Time
	Logger       func(context.Context, string, map[string]any)
}

type orderResolutionService struct {
	extractor    TextIntentExtractor
	instructions string
	observer     ResolutionObserver
	now          func() time.Time
	logger       func(context.Context, string, map[string]any)
}

var _ OrderResolutionService = (*orderResolutionService)(nil)

// NewOrderResolutionService constructs the resolution engine.
func NewOrderResolutionService(deps OrderResolutionServiceDeps) (OrderResolutionService, error) {
	if deps.Extractor == nil {
		return nil, errors.New("order resolution: extractor is required")
	}
	instructions := strings.TrimSpace(deps.Instructions)
	if instructions == "" {
		instructions = OrderExtractionInstructions
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	observer := deps.Observer
	if observer == nil {
		observer = noopResolutionObserver{}
	}
	return &orderResolutionService{
		extractor:    deps.Extractor,
		instructions: instructions,
		observer:     observer,
		now:          clock,
		logger:       logger,
	}, nil
}

// Resolve extracts candidate rows and keeps only those that name a catalog product with a
// positive quantity. Rows keep the extractor's order.
func (s *orderResolutionService) Resolve(ctx context.Context, cmd ResolveOrderCommand) ([]OrderItem, error) {
	started := s.now()

	if strings.TrimSpace(cmd.Text) == "" {
		s.observer.ObserveResolution(ResolutionOutcomeEmpty, 0)
		return []OrderItem{}, nil
	}

	creds := ExtractorCredentials{
		APIKey:  strings.TrimSpace(cmd.Credentials.APIKey),
		BaseURL: strings.TrimSpace(cmd.Credentials.BaseURL),
	}
	if creds.APIKey == "" {
		s.observer.ObserveResolution(ResolutionOutcomeNotConfigured, 0)
		return nil, &ConfigurationError{Setting: "deepseekApiKey"}
	}

	entries := make([]CatalogEntry, 0, len(cmd.Catalog))
	for _, product := range cmd.Catalog {
		entries = append(entries, CatalogEntry{ID: product.ID, Name: product.Name})
	}

	rows, err := s.extractor.Extract(ctx, ExtractionRequest{
		Entries:      entries,
		Instructions: s.instructions,
		Text:         cmd.Text,
		Credentials:  creds,
	})
	elapsed := s.now().Sub(started)
	if err != nil {
		if errors.Is(err, ErrExtractorMalformedResponse) {
			s.observer.ObserveResolution(ResolutionOutcomeMalformed, elapsed)
			s.logger(ctx, "order_resolution.malformed_response", map[string]any{"error": err.Error()})
			return nil, &ExtractorResponseMalformedError{Err: err}
		}
		s.observer.ObserveResolution(ResolutionOutcomeUnavailable, elapsed)
		s.logger(ctx, "order_resolution.extractor_error", map[string]any{"error": err.Error()})
		return nil, &ExtractorUnavailableError{Err: err}
	}

	index := cmd.Catalog.Index()
	items := make([]OrderItem, 0, len(rows))
	for position, row := range rows {
		product, ok := index[strings.TrimSpace(row.ProductID)]
		if !ok {
			s.observer.ObserveDroppedRow(DroppedRowUnresolved)
			s.logger(ctx, "order_resolution.row_unresolved", map[string]any{
				"position":  position,
				"productId": row.ProductID,
			})
			continue
		}
		box := quantityValue(row.QuantityBox)
		item := quantityValue(row.QuantityItem)
		if box == 0 && item == 0 {
			s.observer.ObserveDroppedRow(DroppedRowZeroQuantity)
			continue
		}
		items = append(items, OrderItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			QuantityBox:  box,
			QuantityItem: item,
		})
	}

	s.observer.ObserveResolution(ResolutionOutcomeOK, elapsed)
	s.logger(ctx, "order_resolution.resolved", map[string]any{
		"candidates": len(rows),
		"items":      len(items),
		"elapsedMs":  elapsed.Milliseconds(),
	})
	return items, nil
}

// quantityValue defaults absent quantities to zero. Fractions are truncated and negatives or
// non-finite values become zero so line items always carry non-negative integers.
func quantityValue(v *float64) int {
	if v == nil {
		return 0
	}
	value := *v
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0
	}
	if value > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(value))
}

type noopResolutionObserver struct{}

func (noopResolutionObserver) ObserveResolution(string, time.Duration) {}
func (noopResolutionObserver) ObserveDroppedRow(string)                {}
