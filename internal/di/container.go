package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smartprice/api/internal/platform/config"
	pfirestore "github.com/smartprice/api/internal/platform/firestore"
	"github.com/smartprice/api/internal/platform/observability"
	"github.com/smartprice/api/internal/repositories"
	firestoreRepo "github.com/smartprice/api/internal/repositories/firestore"
	"github.com/smartprice/api/internal/repositories/pebblestore"
	"github.com/smartprice/api/internal/repositories/postgres"
	"github.com/smartprice/api/internal/services"
)

const storePingTimeout = 3 * time.Second

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog    services.CatalogService
	Settings   services.SettingsService
	Resolver   services.OrderResolutionService
	Imports    services.PriceImportService
	Backup     services.BackupService
	Quotations services.QuotationService
	System     services.SystemService
}

// Infrastructure carries collaborators built outside the container: remote extractors,
// the event sink and optional archive target.
type Infrastructure struct {
	TextExtractor  services.TextIntentExtractor
	ImageExtractor services.TableImageExtractor
	Spreadsheet    services.SpreadsheetParser
	Archiver       services.BackupArchiver
	Events         services.EventPublisher
	Observer       services.ResolutionObserver
	// Checks are probed alongside the store ping on readiness.
	Checks []repositories.DependencyCheck
	Build  services.BuildInfo
	Logger *zap.Logger
	Clock  func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// OpenRegistry opens the store selected by cfg.Store.Driver.
func OpenRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "", "pebble":
		store, err := pebblestore.Open(cfg.Store.PebblePath)
		if err != nil {
			return nil, fmt.Errorf("open pebble store: %w", err)
		}
		return store, nil
	case "firestore":
		provider := pfirestore.NewProvider(cfg.Firestore)
		registry, err := firestoreRepo.NewRegistry(provider, cfg.Store.CollectionPrefix)
		if err != nil {
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		return registry, nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg.Store.PostgresDSN, postgres.Options{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// NewContainer constructs the runtime dependencies on top of an opened registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases the store.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	events := func(name string) func(context.Context, string, map[string]any) {
		return observability.EventLogger(logger.Named(name))
	}

	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Logger:   events("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	settingsSvc, err := services.NewSettingsService(services.SettingsServiceDeps{
		Settings: reg.Settings(),
		Fallback: services.SettingsFallback{
			DeepSeekAPIKey:  cfg.AI.DeepSeekAPIKey,
			DeepSeekBaseURL: cfg.AI.DeepSeekBaseURL,
			GeminiAPIKey:    cfg.AI.GeminiAPIKey,
		},
		Logger: events("settings"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build settings service: %w", err)
	}
	svc.Settings = settingsSvc

	resolverSvc, err := services.NewOrderResolutionService(services.OrderResolutionServiceDeps{
		Extractor: infra.TextExtractor,
		Observer:  infra.Observer,
		Clock:     clock,
		Logger:    events("resolver"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order resolution service: %w", err)
	}
	svc.Resolver = resolverSvc

	importSvc, err := services.NewPriceImportService(services.PriceImportServiceDeps{
		Catalog:     catalogSvc,
		Settings:    settingsSvc,
		Spreadsheet: infra.Spreadsheet,
		Images:      infra.ImageExtractor,
		Logger:      events("imports"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build price import service: %w", err)
	}
	svc.Imports = importSvc

	backupSvc, err := services.NewBackupService(services.BackupServiceDeps{
		Products: reg.Products(),
		Settings: reg.Settings(),
		Archiver: infra.Archiver,
		Clock:    clock,
		Logger:   events("backup"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build backup service: %w", err)
	}
	svc.Backup = backupSvc

	quotationSvc, err := services.NewQuotationService(services.QuotationServiceDeps{
		Catalog:  catalogSvc,
		Resolver: resolverSvc,
		Settings: settingsSvc,
		Events:   infra.Events,
		Clock:    clock,
		Logger:   events("quotations"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build quotation service: %w", err)
	}
	svc.Quotations = quotationSvc

	checks := make([]repositories.DependencyCheck, 0, len(infra.Checks)+1)
	checks = append(checks, repositories.DependencyCheck{
		Name:    "store",
		Timeout: storePingTimeout,
		Check:   reg.Ping,
	})
	checks = append(checks, infra.Checks...)
	healthRepo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(clock))
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}

	build := infra.Build
	if build.Environment == "" {
		build.Environment = cfg.Environment
	}
	if build.StartedAt.IsZero() {
		build.StartedAt = clock().UTC()
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}
