package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/platform/textutil"
)

var (
	// ErrPriceImportUnreadable indicates the uploaded file could not be parsed as a price table.
	ErrPriceImportUnreadable = errors.New("price import: unreadable table")
	// ErrPriceImportEmpty indicates the table parsed but yielded no product rows.
	ErrPriceImportEmpty = errors.New("price import: no product rows found")
)

// RawPriceRow is one product row read from an external price table.
type RawPriceRow struct {
	Name   string
	Prices PriceTable
}

// SpreadsheetParser reads price rows from a workbook.
type SpreadsheetParser interface {
	Parse(ctx context.Context, data []byte) ([]RawPriceRow, error)
}

// TableImageExtractor reads price rows from a photograph using a vision model. Implementations
// wrap ErrExtractorUnavailable or ErrExtractorMalformedResponse like the text extractor does.
type TableImageExtractor interface {
	ExtractPriceTable(ctx context.Context, req ImageExtractionRequest) ([]RawPriceRow, error)
}

// ImageExtractionRequest is everything the image extractor receives.
type ImageExtractionRequest struct {
	Data        []byte
	MIMEType    string
	Credentials ExtractorCredentials
}

// PriceImportServiceDeps bundles constructor inputs for the price import service.
type PriceImportServiceDeps struct {
	Catalog     CatalogService
	Settings    SettingsService
	Spreadsheet SpreadsheetParser
	Images      TableImageExtractor
	Logger      func(context.Context, string, map[string]any)
}

type priceImportService struct {
	catalog     CatalogService
	settings    SettingsService
	spreadsheet SpreadsheetParser
	images      TableImageExtractor
	logger      func(context.Context, string, map[string]any)
}

var _ PriceImportService = (*priceImportService)(nil)

// NewPriceImportService constructs the import service. Either parser may be nil, in which case
// the matching import path reports a configuration error.
func NewPriceImportService(deps PriceImportServiceDeps) (PriceImportService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("price import: catalog service is required")
	}
	if deps.Images != nil && deps.Settings == nil {
		return nil, errors.New("price import: settings service is required for image import")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &priceImportService{
		catalog:     deps.Catalog,
		settings:    deps.Settings,
		spreadsheet: deps.Spreadsheet,
		images:      deps.Images,
		logger:      logger,
	}, nil
}

func (s *priceImportService) ImportSpreadsheet(ctx context.Context, cmd SpreadsheetImportCommand) (ImportSummary, error) {
	if s.spreadsheet == nil {
		return ImportSummary{}, &ConfigurationError{Setting: "spreadsheetParser"}
	}
	if len(cmd.Data) == 0 {
		return ImportSummary{}, fmt.Errorf("%w: empty upload", ErrPriceImportUnreadable)
	}
	rows, err := s.spreadsheet.Parse(ctx, cmd.Data)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("%w: %v", ErrPriceImportUnreadable, err)
	}
	return s.importRows(ctx, rows, cmd.Mode, "spreadsheet")
}

func (s *priceImportService) ImportImage(ctx context.Context, cmd ImageImportCommand) (ImportSummary, error) {
	if s.images == nil {
		return ImportSummary{}, &ConfigurationError{Setting: "geminiApiKey"}
	}
	if len(cmd.Data) == 0 {
		return ImportSummary{}, fmt.Errorf("%w: empty upload", ErrPriceImportUnreadable)
	}
	creds, err := s.settings.Credentials(ctx, CredentialGemini)
	if err != nil {
		return ImportSummary{}, err
	}
	if strings.TrimSpace(creds.APIKey) == "" {
		return ImportSummary{}, &ConfigurationError{Setting: "geminiApiKey"}
	}

	rows, err := s.images.ExtractPriceTable(ctx, ImageExtractionRequest{
		Data:        cmd.Data,
		MIMEType:    strings.TrimSpace(cmd.MIMEType),
		Credentials: creds,
	})
	if err != nil {
		s.logger(ctx, "price_import.image_extractor_error", map[string]any{"error": err.Error()})
		if errors.Is(err, ErrExtractorMalformedResponse) {
			return ImportSummary{}, &ExtractorResponseMalformedError{Err: err}
		}
		return ImportSummary{}, &ExtractorUnavailableError{Err: err}
	}
	return s.importRows(ctx, rows, cmd.Mode, "image")
}

func (s *priceImportService) importRows(ctx context.Context, rows []RawPriceRow, mode ImportMode, source string) (ImportSummary, error) {
	products := make([]Product, 0, len(rows))
	for _, row := range rows {
		name := textutil.ProductName(row.Name)
		if name == "" {
			continue
		}
		products = append(products, Product{Name: name, Prices: NormalizeImportedPrices(row.Prices)})
	}
	if len(products) == 0 {
		return ImportSummary{}, ErrPriceImportEmpty
	}
	return s.catalog.Import(ctx, ImportProductsCommand{
		Products: products,
		Mode:     mode,
		Source:   source,
	})
}

// NormalizeImportedPrices fills a missing item price with the box price for every tier. Tables
// that list a single price per tier usually mean the same price for both units.
func NormalizeImportedPrices(table PriceTable) PriceTable {
	for _, tier := range domain.PriceTiers {
		price := table.Price(tier)
		if price.Box > 0 && price.Item == 0 {
			price.Item = price.Box
			table = table.WithPrice(tier, price)
		}
	}
	return table
}
