package di

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/platform/config"
	"github.com/smartprice/api/internal/repositories"
	"github.com/smartprice/api/internal/services"
)

type fixedExtractor struct {
	rows []services.ExtractedRow
}

func (f fixedExtractor) Extract(context.Context, services.ExtractionRequest) ([]services.ExtractedRow, error) {
	return f.rows, nil
}

func openPebbleContainer(t *testing.T, infra Infrastructure) *Container {
	t.Helper()
	cfg := config.Config{
		Environment: "test",
		Store:       config.StoreConfig{Driver: "pebble", PebblePath: t.TempDir()},
		AI:          config.AIConfig{DeepSeekAPIKey: "sk-env", DeepSeekBaseURL: "https://api.deepseek.com"},
	}
	reg, err := OpenRegistry(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	container, err := NewContainer(context.Background(), cfg, reg, infra)
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })
	return container
}

func TestOpenRegistryRejectsUnknownDriver(t *testing.T) {
	_, err := OpenRegistry(context.Background(), config.Config{Store: config.StoreConfig{Driver: "mysql"}})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, nil, Infrastructure{}); err == nil {
		t.Fatal("expected error without registry")
	}
}

func TestNewContainerRequiresTextExtractor(t *testing.T) {
	cfg := config.Config{Store: config.StoreConfig{Driver: "pebble", PebblePath: t.TempDir()}}
	reg, err := OpenRegistry(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer reg.Close(context.Background())

	if _, err := NewContainer(context.Background(), cfg, reg, Infrastructure{}); err == nil {
		t.Fatal("expected error when text extractor is missing")
	}
}

func TestContainerQuotesAgainstStoredCatalog(t *testing.T) {
	container := openPebbleContainer(t, Infrastructure{
		TextExtractor: fixedExtractor{},
		Clock:         func() time.Time { return time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC) },
	})
	ctx := context.Background()

	product, err := container.Services.Catalog.Add(ctx)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := container.Services.Catalog.UpdatePrice(ctx, services.UpdatePriceCommand{
		ProductID: product.ID,
		Tier:      domain.PriceTierWholesale,
		Unit:      domain.UnitBox,
		Value:     100,
	}); err != nil {
		t.Fatalf("update price: %v", err)
	}

	record, err := container.Services.Quotations.Quote(ctx, services.QuoteCommand{
		Lines: []services.OrderItem{{ProductID: product.ID, ProductName: product.Name, QuantityBox: 3}},
		Tier:  domain.PriceTierWholesale,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if record.Total != 300 {
		t.Fatalf("expected total 300, got %v", record.Total)
	}
}

func TestContainerSettingsFallBackToEnvironmentKeys(t *testing.T) {
	container := openPebbleContainer(t, Infrastructure{TextExtractor: fixedExtractor{}})

	creds, err := container.Services.Settings.Credentials(context.Background(), services.CredentialDeepSeek)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.APIKey != "sk-env" {
		t.Fatalf("expected environment key, got %q", creds.APIKey)
	}
}

func TestContainerHealthIncludesStoreAndExtraChecks(t *testing.T) {
	container := openPebbleContainer(t, Infrastructure{
		TextExtractor: fixedExtractor{},
		Checks: []repositories.DependencyCheck{{
			Name:  "events",
			Check: func(context.Context) error { return errors.New("broker down") },
		}},
	})

	report, err := container.Services.System.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if report.Checks["store"].Status != domain.HealthStatusOK {
		t.Fatalf("expected store ok, got %#v", report.Checks["store"])
	}
	if report.Checks["events"].Status == domain.HealthStatusOK {
		t.Fatalf("expected events check to fail, got %#v", report.Checks["events"])
	}
	if report.Environment != "test" {
		t.Fatalf("expected environment from config, got %q", report.Environment)
	}
}
