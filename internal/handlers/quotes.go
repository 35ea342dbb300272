package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/platform/httpx"
	"github.com/smartprice/api/internal/services"
)

// QuoteHandlers exposes order resolution, pricing, formatting and the combined quotation flow.
type QuoteHandlers struct {
	catalog    services.CatalogService
	settings   services.SettingsService
	resolver   services.OrderResolutionService
	quotations services.QuotationService
	cfg        handlerConfig
}

// NewQuoteHandlers constructs quote handlers.
func NewQuoteHandlers(catalog services.CatalogService, settings services.SettingsService, resolver services.OrderResolutionService, quotations services.QuotationService, opts ...HandlerOption) *QuoteHandlers {
	return &QuoteHandlers{
		catalog:    catalog,
		settings:   settings,
		resolver:   resolver,
		quotations: quotations,
		cfg:        newHandlerConfig(opts),
	}
}

// Routes registers quote endpoints.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(h.cfg.resolveMiddlewares...).Post("/quotes:resolve", h.resolve)
	r.Post("/quotes:price", h.price)
	r.Post("/quotes:format", h.format)
	r.Post("/quotes", h.quote)
}

type resolveRequest struct {
	Text string `json:"text"`
}

type orderItemPayload struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	QuantityBox  int    `json:"quantityBox"`
	QuantityItem int    `json:"quantityItem"`
}

type resolveResponse struct {
	Items []orderItemPayload `json:"items"`
}

func (h *QuoteHandlers) resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.resolver == nil || h.catalog == nil || h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order resolution unavailable", http.StatusServiceUnavailable))
		return
	}
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req, h.cfg.maxBody); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	products, err := h.catalog.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	creds, err := h.settings.Credentials(ctx, services.CredentialDeepSeek)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items, err := h.resolver.Resolve(ctx, services.ResolveOrderCommand{
		Text:        req.Text,
		Catalog:     domain.Catalog(products),
		Credentials: creds,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resolveResponse{Items: orderItemPayloads(items)})
}

type priceRequest struct {
	Items []orderItemPayload `json:"items"`
	Tier  string             `json:"tier"`
}

type unitPricePayload struct {
	Box  float64 `json:"box"`
	Item float64 `json:"item"`
}

type quoteLinePayload struct {
	orderItemPayload
	Found     bool             `json:"found"`
	UnitPrice unitPricePayload `json:"unitPrice"`
	Subtotal  float64          `json:"subtotal"`
}

type priceResponse struct {
	Tier      string             `json:"tier"`
	TierLabel string             `json:"tierLabel"`
	Lines     []quoteLinePayload `json:"lines"`
	Total     float64            `json:"total"`
}

func (h *QuoteHandlers) price(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	var req priceRequest
	if err := httpx.DecodeJSON(r, &req, h.cfg.maxBody); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	tier, err := parseTier(req.Tier)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	items, err := orderItemsFromPayload(req.Items)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	products, err := h.catalog.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	quote := services.PriceQuote(items, domain.Catalog(products), tier)
	httpx.WriteJSON(w, http.StatusOK, priceResponse{
		Tier:      string(tier),
		TierLabel: tier.Label(),
		Lines:     quoteLinePayloads(quote.Lines),
		Total:     quote.Total,
	})
}

type formatRequest struct {
	Items        []orderItemPayload `json:"items"`
	Tier         string             `json:"tier"`
	CashierLabel *string            `json:"cashierLabel"`
	Date         string             `json:"date"`
}

type formatResponse struct {
	Text string `json:"text"`
}

func (h *QuoteHandlers) format(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil || h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	var req formatRequest
	if err := httpx.DecodeJSON(r, &req, h.cfg.maxBody); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	tier, err := parseTier(req.Tier)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	items, err := orderItemsFromPayload(req.Items)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	date, err := parseQuoteDate(req.Date, h.cfg.clock)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	products, err := h.catalog.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	var label string
	if req.CashierLabel != nil {
		label = *req.CashierLabel
	} else {
		settings, err := h.settings.Get(ctx)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		label = settings.CashierName
	}

	text := services.FormatQuotation(services.QuotationInput{
		Lines:        items,
		Catalog:      domain.Catalog(products),
		Tier:         tier,
		CashierLabel: strings.TrimSpace(label),
		Date:         date,
	})
	httpx.WriteJSON(w, http.StatusOK, formatResponse{Text: text})
}

type quoteRequest struct {
	Text         string             `json:"text"`
	Items        []orderItemPayload `json:"items"`
	Tier         string             `json:"tier"`
	CashierLabel *string            `json:"cashierLabel"`
	Date         string             `json:"date"`
}

type quotationPayload struct {
	ID           string             `json:"id"`
	Tier         string             `json:"tier"`
	TierLabel    string             `json:"tierLabel"`
	CashierLabel string             `json:"cashierLabel,omitempty"`
	Lines        []quoteLinePayload `json:"lines"`
	Total        float64            `json:"total"`
	Text         string             `json:"text"`
	CreatedAt    string             `json:"createdAt"`
}

func (h *QuoteHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotations == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "quotation service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req quoteRequest
	if err := httpx.DecodeJSON(r, &req, h.cfg.maxBody); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	tier, err := parseTier(req.Tier)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	items, err := orderItemsFromPayload(req.Items)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	var date time.Time
	if strings.TrimSpace(req.Date) != "" {
		if date, err = parseQuoteDate(req.Date, h.cfg.clock); err != nil {
			writeBadRequest(ctx, w, err)
			return
		}
	}

	record, err := h.quotations.Quote(ctx, services.QuoteCommand{
		Text:         req.Text,
		Lines:        items,
		Tier:         tier,
		CashierLabel: req.CashierLabel,
		Date:         date,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, quotationPayload{
		ID:           record.ID,
		Tier:         string(record.Tier),
		TierLabel:    record.Tier.Label(),
		CashierLabel: record.CashierLabel,
		Lines:        quoteLinePayloads(record.Lines),
		Total:        record.Total,
		Text:         record.Text,
		CreatedAt:    record.CreatedAt.Format(time.RFC3339),
	})
}

func parseTier(value string) (domain.PriceTier, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.DefaultPriceTier, nil
	}
	tier := domain.PriceTier(value)
	if !tier.Valid() {
		return "", fmt.Errorf("unknown price tier %q", value)
	}
	return tier, nil
}

// parseQuoteDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseQuoteDate(value string, clock func() time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return clock(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

func orderItemsFromPayload(payload []orderItemPayload) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(payload))
	for i, p := range payload {
		if strings.TrimSpace(p.ProductID) == "" {
			return nil, fmt.Errorf("items[%d].productId is required", i)
		}
		if p.QuantityBox < 0 || p.QuantityItem < 0 {
			return nil, fmt.Errorf("items[%d] quantities must not be negative", i)
		}
		items = append(items, domain.OrderItem(p))
	}
	return items, nil
}

func orderItemPayloads(items []domain.OrderItem) []orderItemPayload {
	out := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemPayload(item))
	}
	return out
}

func quoteLinePayloads(lines []domain.QuotationLine) []quoteLinePayload {
	out := make([]quoteLinePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, quoteLinePayload{
			orderItemPayload: orderItemPayload(line.Item),
			Found:            line.Found,
			UnitPrice:        unitPricePayload(line.UnitPrice),
			Subtotal:         line.Subtotal,
		})
	}
	return out
}
