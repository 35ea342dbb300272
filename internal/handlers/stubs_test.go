package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/services"
)

type stubCatalog struct {
	products []domain.Product
	err      error
	renames  []services.RenameProductCommand
	prices   []services.UpdatePriceCommand
	deleted  []string
	imports  []services.ImportProductsCommand
}

func (s *stubCatalog) List(context.Context) ([]domain.Product, error) {
	return append([]domain.Product(nil), s.products...), s.err
}

func (s *stubCatalog) Add(context.Context) (domain.Product, error) {
	if s.err != nil {
		return domain.Product{}, s.err
	}
	product := domain.Product{ID: "new", Name: services.NewProductName}
	s.products = append([]domain.Product{product}, s.products...)
	return product, nil
}

func (s *stubCatalog) find(id string) (int, error) {
	for i := range s.products {
		if s.products[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", services.ErrCatalogNotFound, id)
}

func (s *stubCatalog) Rename(_ context.Context, cmd services.RenameProductCommand) (domain.Product, error) {
	s.renames = append(s.renames, cmd)
	i, err := s.find(cmd.ProductID)
	if err != nil {
		return domain.Product{}, err
	}
	s.products[i].Name = cmd.Name
	return s.products[i], nil
}

func (s *stubCatalog) UpdatePrice(_ context.Context, cmd services.UpdatePriceCommand) (domain.Product, error) {
	s.prices = append(s.prices, cmd)
	if !cmd.Tier.Valid() {
		return domain.Product{}, fmt.Errorf("%w: unknown price tier %q", services.ErrCatalogInvalidInput, cmd.Tier)
	}
	i, err := s.find(cmd.ProductID)
	if err != nil {
		return domain.Product{}, err
	}
	price := s.products[i].Prices.Price(cmd.Tier)
	if cmd.Unit == domain.UnitBox {
		price.Box = cmd.Value
	} else {
		price.Item = cmd.Value
	}
	s.products[i].Prices = s.products[i].Prices.WithPrice(cmd.Tier, price)
	return s.products[i], nil
}

func (s *stubCatalog) Delete(_ context.Context, productID string) error {
	s.deleted = append(s.deleted, productID)
	_, err := s.find(productID)
	return err
}

func (s *stubCatalog) Import(_ context.Context, cmd services.ImportProductsCommand) (services.ImportSummary, error) {
	s.imports = append(s.imports, cmd)
	if s.err != nil {
		return services.ImportSummary{}, s.err
	}
	return services.ImportSummary{Mode: cmd.Mode, Added: len(cmd.Products), Total: len(cmd.Products)}, nil
}

type stubSettings struct {
	settings domain.AppSettings
	creds    services.ExtractorCredentials
	err      error
	updates  []domain.AppSettings
}

func (s *stubSettings) Get(context.Context) (domain.AppSettings, error) {
	return s.settings, s.err
}

func (s *stubSettings) Update(_ context.Context, settings domain.AppSettings) (domain.AppSettings, error) {
	if s.err != nil {
		return domain.AppSettings{}, s.err
	}
	s.updates = append(s.updates, settings)
	s.settings = services.NormalizeSettings(settings)
	return s.settings, nil
}

func (s *stubSettings) Credentials(context.Context, services.CredentialKind) (services.ExtractorCredentials, error) {
	return s.creds, s.err
}

type stubResolver struct {
	items []domain.OrderItem
	err   error
	calls []services.ResolveOrderCommand
}

func (s *stubResolver) Resolve(_ context.Context, cmd services.ResolveOrderCommand) ([]domain.OrderItem, error) {
	s.calls = append(s.calls, cmd)
	return s.items, s.err
}

type stubQuotations struct {
	record domain.QuotationRecord
	err    error
	calls  []services.QuoteCommand
}

func (s *stubQuotations) Quote(_ context.Context, cmd services.QuoteCommand) (domain.QuotationRecord, error) {
	s.calls = append(s.calls, cmd)
	return s.record, s.err
}

type stubImports struct {
	summary     services.ImportSummary
	err         error
	spreadsheet []services.SpreadsheetImportCommand
	images      []services.ImageImportCommand
}

func (s *stubImports) ImportSpreadsheet(_ context.Context, cmd services.SpreadsheetImportCommand) (services.ImportSummary, error) {
	s.spreadsheet = append(s.spreadsheet, cmd)
	return s.summary, s.err
}

func (s *stubImports) ImportImage(_ context.Context, cmd services.ImageImportCommand) (services.ImportSummary, error) {
	s.images = append(s.images, cmd)
	return s.summary, s.err
}

type stubBackups struct {
	export   services.BackupExport
	result   services.BackupImportResult
	err      error
	imported [][]byte
}

func (s *stubBackups) Export(context.Context) (services.BackupExport, error) {
	return s.export, s.err
}

func (s *stubBackups) Import(_ context.Context, data []byte) (services.BackupImportResult, error) {
	s.imported = append(s.imported, data)
	return s.result, s.err
}

type stubSystem struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystem) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

type storeUnavailable struct{}

func (storeUnavailable) Error() string       { return "store down" }
func (storeUnavailable) IsNotFound() bool    { return false }
func (storeUnavailable) IsConflict() bool    { return false }
func (storeUnavailable) IsUnavailable() bool { return true }

var errBoom = errors.New("boom")

func widgetProducts() []domain.Product {
	return []domain.Product{
		{
			ID:   "a",
			Name: "Widget",
			Prices: domain.PriceTable{
				Wholesale: domain.UnitPrice{Box: 100, Item: 20},
				Retail:    domain.UnitPrice{Box: 120, Item: 25},
			},
		},
		{ID: "b", Name: "Gadget", Prices: domain.PriceTable{Wholesale: domain.UnitPrice{Box: 50, Item: 5}}},
	}
}

func serve(register RouteRegistrar, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	register(r)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}
