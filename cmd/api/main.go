package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/smartprice/api/internal/di"
	"github.com/smartprice/api/internal/extractors/deepseek"
	"github.com/smartprice/api/internal/extractors/gemini"
	"github.com/smartprice/api/internal/handlers"
	"github.com/smartprice/api/internal/importers/seed"
	"github.com/smartprice/api/internal/importers/spreadsheet"
	"github.com/smartprice/api/internal/platform/config"
	"github.com/smartprice/api/internal/platform/idempotency"
	"github.com/smartprice/api/internal/platform/jobs"
	"github.com/smartprice/api/internal/platform/metrics"
	"github.com/smartprice/api/internal/platform/observability"
	"github.com/smartprice/api/internal/platform/secrets"
	platformstorage "github.com/smartprice/api/internal/platform/storage"
	"github.com/smartprice/api/internal/repositories"
	firestoreRepo "github.com/smartprice/api/internal/repositories/firestore"
	"github.com/smartprice/api/internal/services"
)

const (
	idempotencyCleanupInterval = 10 * time.Minute
	idempotencyCleanupLimit    = 200
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(observability.LoggerConfig{
		Level:       os.Getenv("LOG_LEVEL"),
		Development: strings.EqualFold(strings.TrimSpace(os.Getenv("API_ENVIRONMENT")), "local"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	registry, err := di.OpenRegistry(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
	}()

	metricsRegistry := metrics.NewRegistry()

	textExtractor := deepseek.New(
		deepseek.WithTimeout(cfg.AI.RequestTimeout),
		deepseek.WithObserver(metricsRegistry),
	)
	imageExtractor := gemini.New(
		gemini.WithTimeout(cfg.AI.RequestTimeout),
		gemini.WithMaxImageDimension(cfg.AI.MaxImageDimension),
		gemini.WithObserver(metricsRegistry),
	)

	publisher, stopPublisher, err := newEventPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.String("driver", cfg.Events.Driver), zap.Error(err))
	}
	defer stopPublisher()

	archiver, closeArchiver, err := newBackupArchiver(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise backup archiver", zap.Error(err))
	}
	defer closeArchiver()

	var checks []repositories.DependencyCheck
	if secretProjectID(envValues) != "" {
		checks = append(checks, secretManagerCheck(fetcher))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Infrastructure{
		TextExtractor:  textExtractor,
		ImageExtractor: imageExtractor,
		Spreadsheet:    spreadsheet.NewParser(),
		Archiver:       archiver,
		Events:         jobs.NewObservedEventPublisher(publisher, metricsRegistry),
		Observer:       metricsRegistry,
		Checks:         checks,
		Build:          buildInfo,
		Logger:         logger,
		Clock:          time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	svc := container.Services

	if seeded, err := seed.Apply(ctx, svc.Catalog, cfg.Seed.CatalogFile); err != nil {
		logger.Warn("catalog seed failed", zap.String("file", cfg.Seed.CatalogFile), zap.Error(err))
	} else if seeded > 0 {
		logger.Info("catalog seeded", zap.Int("products", seeded), zap.String("file", cfg.Seed.CatalogFile))
	}

	idempotencyStore, err := newIdempotencyStore(ctx, registry, cfg.Store.CollectionPrefix)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyLogger := observability.NewPrintfAdapter(logger.Named("idempotency"))
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMaxBody(cfg.Security.MaxBodyBytes),
		idempotency.WithLogger(idempotencyLogger),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		idempotency.RunJanitor(cleanupCtx, idempotencyStore, idempotencyCleanupInterval, idempotencyCleanupLimit, time.Now, idempotencyLogger)
	}()

	handlerOpts := []handlers.HandlerOption{handlers.WithMaxBodyBytes(cfg.Security.MaxBodyBytes)}
	quoteHandlers := handlers.NewQuoteHandlers(svc.Catalog, svc.Settings, svc.Resolver, svc.Quotations,
		append(handlerOpts, handlers.WithResolveMiddlewares(
			handlers.RateLimitMiddleware(cfg.Security.RateLimitPerMinute),
			idempotencyMiddleware,
		))...,
	)
	productHandlers := handlers.NewProductHandlers(svc.Catalog, svc.Imports, handlerOpts...)
	settingsHandlers := handlers.NewSettingsHandlers(svc.Settings, handlerOpts...)
	backupHandlers := handlers.NewBackupHandlers(svc.Backup, handlerOpts...)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(svc.System),
		handlers.WithHealthBuildInfo(buildInfo),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger),
		observability.TraceMiddleware(traceProjectID(cfg)),
		observability.RequestLoggerMiddleware(),
	}
	if cfg.Metrics.Enabled {
		middlewares = append(middlewares, metricsRegistry.Middleware)
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithQuoteRoutes(quoteHandlers.Routes))
	opts = append(opts, handlers.WithProductRoutes(productHandlers.Routes))
	opts = append(opts, handlers.WithSettingsRoutes(settingsHandlers.Routes))
	opts = append(opts, handlers.WithBackupRoutes(backupHandlers.Routes))
	if cfg.Metrics.Enabled {
		opts = append(opts, handlers.WithMetricsHandler(cfg.Metrics.Path, metricsRegistry.Handler()))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("smartprice api listening",
			zap.String("store", cfg.Store.Driver),
			zap.String("events", cfg.Events.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	fallbackPath := strings.TrimSpace(env["API_SECRET_FALLBACK_FILE"])
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project := secretProjectID(env); project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile := strings.TrimSpace(env["API_SECRET_CREDENTIALS_FILE"]); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func secretProjectID(env map[string]string) string {
	for _, key := range []string{"API_SECRET_PROJECT_ID", "API_FIRESTORE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"} {
		if value := strings.TrimSpace(env[key]); value != "" {
			return value
		}
	}
	return ""
}

// requiredSecretNames lists the secret-backed settings the selected drivers cannot start without.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(strings.TrimSpace(env["API_STORE_DRIVER"]), config.StoreDriverPostgres) {
		required = append(required, "Store.PostgresDSN")
	}
	return required
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const secretHealthReference = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

func newEventPublisher(ctx context.Context, cfg config.Config) (services.EventPublisher, func(), error) {
	switch cfg.Events.Driver {
	case config.EventsDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Events.PubSubProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		publisher, err := jobs.NewPubSubEventPublisher(client.Topic(cfg.Events.PubSubTopic))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return publisher, func() {
			publisher.Stop()
			_ = client.Close()
		}, nil
	case config.EventsDriverKafka:
		publisher, err := jobs.NewKafkaEventPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		return publisher, func() { _ = publisher.Close() }, nil
	default:
		return jobs.NoopEventPublisher{}, func() {}, nil
	}
}

func newBackupArchiver(ctx context.Context, cfg config.Config) (services.BackupArchiver, func(), error) {
	if strings.TrimSpace(cfg.Backup.Bucket) == "" {
		return nil, func() {}, nil
	}
	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("storage client: %w", err)
	}
	archiver, err := platformstorage.NewArchiver(client, cfg.Backup.Bucket, cfg.Backup.Prefix)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return archiver, func() { _ = client.Close() }, nil
}

// newIdempotencyStore keeps idempotency records next to the catalog when it lives in Firestore so
// replays survive instance restarts; other drivers use the in-process store.
func newIdempotencyStore(ctx context.Context, registry repositories.Registry, prefix string) (idempotency.Store, error) {
	fsRegistry, ok := registry.(*firestoreRepo.Registry)
	if !ok {
		return idempotency.NewMemoryStore(), nil
	}
	client, err := fsRegistry.Provider().Client(ctx)
	if err != nil {
		return nil, err
	}
	opts := []idempotency.FirestoreOption{}
	if prefix = strings.Trim(strings.TrimSpace(prefix), "_"); prefix != "" {
		opts = append(opts, idempotency.WithCollection(prefix+"_idempotency"))
	}
	return idempotency.NewFirestoreStore(client, opts...), nil
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Events.PubSubProjectID)
}
