package services

import (
	"context"
	"time"

	domain "github.com/smartprice/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	PriceTable         = domain.PriceTable
	UnitPrice          = domain.UnitPrice
	PriceTier          = domain.PriceTier
	Unit               = domain.Unit
	Catalog            = domain.Catalog
	OrderItem          = domain.OrderItem
	AppSettings        = domain.AppSettings
	Backup             = domain.Backup
	QuotationRecord    = domain.QuotationRecord
	QuotationLine      = domain.QuotationLine
	SystemHealthReport = domain.SystemHealthReport
)

// OrderResolutionService turns free-form order text into catalog-anchored line items.
type OrderResolutionService interface {
	Resolve(ctx context.Context, cmd ResolveOrderCommand) ([]OrderItem, error)
}

// ResolveOrderCommand carries everything a resolution needs. The engine keeps no state between calls.
type ResolveOrderCommand struct {
	Text        string
	Catalog     Catalog
	Credentials ExtractorCredentials
}

// CatalogService manages the product list.
type CatalogService interface {
	List(ctx context.Context) ([]Product, error)
	Add(ctx context.Context) (Product, error)
	Rename(ctx context.Context, cmd RenameProductCommand) (Product, error)
	UpdatePrice(ctx context.Context, cmd UpdatePriceCommand) (Product, error)
	Delete(ctx context.Context, productID string) error
	Import(ctx context.Context, cmd ImportProductsCommand) (ImportSummary, error)
}

// RenameProductCommand renames a product. Whitespace and markup are stripped from Name.
type RenameProductCommand struct {
	ProductID string
	Name      string
}

// UpdatePriceCommand sets one tier/unit cell of a product's price table.
type UpdatePriceCommand struct {
	ProductID string
	Tier      PriceTier
	Unit      Unit
	Value     float64
}

// ImportMode selects how imported products combine with the existing list.
type ImportMode string

const (
	// ImportModeReplace swaps the whole list.
	ImportModeReplace ImportMode = "replace"
	// ImportModeMerge matches by whitespace-stripped name, updating prices of matches and appending the rest.
	ImportModeMerge ImportMode = "merge"
)

// ImportProductsCommand imports products in the given mode.
type ImportProductsCommand struct {
	Products []Product
	Mode     ImportMode
	Source   string
}

// ImportSummary reports how an import changed the list.
type ImportSummary struct {
	Mode    ImportMode
	Updated int
	Added   int
	Total   int
}

// PriceImportService ingests price tables from spreadsheets and photographs.
type PriceImportService interface {
	ImportSpreadsheet(ctx context.Context, cmd SpreadsheetImportCommand) (ImportSummary, error)
	ImportImage(ctx context.Context, cmd ImageImportCommand) (ImportSummary, error)
}

// SpreadsheetImportCommand carries a raw workbook.
type SpreadsheetImportCommand struct {
	Data []byte
	Mode ImportMode
}

// ImageImportCommand carries a raw photograph of a price table.
type ImageImportCommand struct {
	Data     []byte
	MIMEType string
	Mode     ImportMode
}

// SettingsService reads and writes the settings document.
type SettingsService interface {
	Get(ctx context.Context) (AppSettings, error)
	Update(ctx context.Context, settings AppSettings) (AppSettings, error)
	Credentials(ctx context.Context, kind CredentialKind) (ExtractorCredentials, error)
}

// CredentialKind names an extractor whose credentials can be resolved.
type CredentialKind string

const (
	CredentialDeepSeek CredentialKind = "deepseek"
	CredentialGemini   CredentialKind = "gemini"
)

// BackupService exports and imports the whole store.
type BackupService interface {
	Export(ctx context.Context) (BackupExport, error)
	Import(ctx context.Context, data []byte) (BackupImportResult, error)
}

// BackupExport is the rendered backup plus where it was archived, if anywhere.
type BackupExport struct {
	Backup     Backup
	Data       []byte
	FileName   string
	ArchiveURI string
}

// BackupImportResult summarises a restored backup.
type BackupImportResult struct {
	Products  int
	Timestamp time.Time
}

// QuotationService runs resolve, price and format end to end.
type QuotationService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (QuotationRecord, error)
}

// QuoteCommand drives a full quotation. When Text is non-empty it is resolved and Lines is ignored.
type QuoteCommand struct {
	Text         string
	Lines        []OrderItem
	Tier         PriceTier
	CashierLabel *string
	Date         time.Time
}

// SystemService exposes operational metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// EventPublisher delivers domain events to the configured broker.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Event is a broker-agnostic envelope.
type Event struct {
	Type       string
	Key        string
	Payload    any
	Attributes map[string]string
}
