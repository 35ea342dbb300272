package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/smartprice/api/internal/domain"
)

// EventQuotationCreated is published after every successful quotation.
const EventQuotationCreated = "quotation.created"

// ErrQuotationInvalidInput indicates an unknown tier or an otherwise unusable command.
var ErrQuotationInvalidInput = errors.New("quotation service: invalid input")

// QuotationServiceDeps bundles constructor inputs for the quotation service.
type QuotationServiceDeps struct {
	Catalog     CatalogService
	Resolver    OrderResolutionService
	Settings    SettingsService
	Events      EventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type quotationService struct {
	catalog  CatalogService
	resolver OrderResolutionService
	settings SettingsService
	events   EventPublisher
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ QuotationService = (*quotationService)(nil)

// NewQuotationService constructs the end to end quotation flow. Events may be nil.
func NewQuotationService(deps QuotationServiceDeps) (QuotationService, error) {
	if deps.Catalog == nil || deps.Resolver == nil || deps.Settings == nil {
		return nil, errors.New("quotation service: catalog, resolver and settings are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &quotationService{
		catalog:  deps.Catalog,
		resolver: deps.Resolver,
		settings: deps.Settings,
		events:   deps.Events,
		now:      clock,
		newID:    newID,
		logger:   logger,
	}, nil
}

func (s *quotationService) Quote(ctx context.Context, cmd QuoteCommand) (QuotationRecord, error) {
	tier := cmd.Tier
	if tier == "" {
		tier = domain.DefaultPriceTier
	}
	if !tier.Valid() {
		return QuotationRecord{}, fmt.Errorf("%w: unknown price tier %q", ErrQuotationInvalidInput, cmd.Tier)
	}

	products, err := s.catalog.List(ctx)
	if err != nil {
		return QuotationRecord{}, err
	}
	catalog := Catalog(products)

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return QuotationRecord{}, err
	}

	lines := cmd.Lines
	if strings.TrimSpace(cmd.Text) != "" {
		creds, err := s.settings.Credentials(ctx, CredentialDeepSeek)
		if err != nil {
			return QuotationRecord{}, err
		}
		lines, err = s.resolver.Resolve(ctx, ResolveOrderCommand{
			Text:        cmd.Text,
			Catalog:     catalog,
			Credentials: creds,
		})
		if err != nil {
			return QuotationRecord{}, err
		}
	}
	if lines == nil {
		lines = []OrderItem{}
	}

	label := settings.CashierName
	if cmd.CashierLabel != nil {
		label = *cmd.CashierLabel
	}
	label = strings.TrimSpace(label)

	created := s.now()
	date := cmd.Date
	if date.IsZero() {
		date = created
	}

	quote := PriceQuote(lines, catalog, tier)
	record := QuotationRecord{
		ID:           s.newID(),
		Tier:         tier,
		CashierLabel: label,
		Lines:        quote.Lines,
		Total:        quote.Total,
		Text: FormatQuotation(QuotationInput{
			Lines:        lines,
			Catalog:      catalog,
			Tier:         tier,
			CashierLabel: label,
			Date:         date,
		}),
		CreatedAt: created.UTC(),
	}

	s.publish(ctx, record)
	return record, nil
}

type quotationCreatedPayload struct {
	ID        string    `json:"id"`
	Tier      string    `json:"tier"`
	Lines     int       `json:"lines"`
	Total     float64   `json:"total"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *quotationService) publish(ctx context.Context, record QuotationRecord) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, Event{
		Type: EventQuotationCreated,
		Key:  record.ID,
		Payload: quotationCreatedPayload{
			ID:        record.ID,
			Tier:      string(record.Tier),
			Lines:     len(record.Lines),
			Total:     record.Total,
			Text:      record.Text,
			CreatedAt: record.CreatedAt,
		},
		Attributes: map[string]string{"tier": string(record.Tier)},
	})
	if err != nil {
		s.logger(ctx, "quotation.publish_failed", map[string]any{
			"quotationId": record.ID,
			"error":       err.Error(),
		})
	}
}
