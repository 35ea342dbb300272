package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 60 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultEnvironment        = "local"
	defaultStoreDriver        = StoreDriverPebble
	defaultPebblePath         = "data/smartprice"
	defaultCollectionPrefix   = "smartprice"
	defaultDeepSeekBaseURL    = "https://api.deepseek.com"
	defaultAIRequestTimeout   = 45 * time.Second
	defaultMaxImageDimension  = 2048
	defaultEventsDriver       = EventsDriverNone
	defaultQuotationTopic     = "quotations"
	defaultBackupPrefix       = "backups"
	defaultRateLimitPerMinute = 30
	defaultMaxBodyBytes       = 10 << 20
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 10 * time.Minute
	defaultMetricsPath        = "/metrics"
)

// Store drivers understood by the loader.
const (
	StoreDriverPebble    = "pebble"
	StoreDriverFirestore = "firestore"
	StoreDriverPostgres  = "postgres"
)

// Event publisher drivers understood by the loader.
const (
	EventsDriverNone   = "none"
	EventsDriverPubSub = "pubsub"
	EventsDriverKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Store       StoreConfig
	Firestore   FirestoreConfig
	AI          AIConfig
	Events      EventsConfig
	Backup      BackupConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	Seed        SeedConfig
	Metrics     MetricsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the catalog/settings persistence backend.
type StoreConfig struct {
	Driver           string
	PebblePath       string
	PostgresDSN      string
	CollectionPrefix string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AIConfig holds server-wide fallback credentials for the extractors. Keys saved through the
// settings endpoint take precedence.
type AIConfig struct {
	DeepSeekAPIKey    string
	DeepSeekBaseURL   string
	GeminiAPIKey      string
	RequestTimeout    time.Duration
	MaxImageDimension int
}

// EventsConfig configures where quotation events are published.
type EventsConfig struct {
	Driver          string
	PubSubProjectID string
	PubSubTopic     string
	KafkaBrokers    []string
	KafkaTopic      string
}

// BackupConfig controls optional archiving of exported backups to Cloud Storage.
type BackupConfig struct {
	Bucket string
	Prefix string
}

// SecurityConfig groups request hardening settings.
type SecurityConfig struct {
	RateLimitPerMinute int
	MaxBodyBytes       int64
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SeedConfig points at an optional product list loaded into an empty store.
type SeedConfig struct {
	CatalogFile string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists the settings that are missing or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config validation failed: missing or invalid fields [" + strings.Join(e.fields, ", ") + "]"
}

func (e *ValidationError) Fields() []string { return append([]string(nil), e.fields...) }

// SecretError wraps a failed secret:// lookup.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError names required secrets that resolved to nothing. Error only prints hashed
// names so the message is safe to log.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return "missing required secrets [" + strings.Join(e.RedactedNames(), ", ") + "]"
}

// Names returns the config field names, sorted.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns a short sha256 prefix per name, sorted.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers use the result to initialise
// dependencies such as the secret fetcher before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader, e.g. "AI.DeepSeekAPIKey".
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	env := envSource(func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	})

	cfg := Config{
		Environment: strings.ToLower(env.str("API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:     env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: env.duration("API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Store: StoreConfig{
			Driver:           strings.ToLower(env.str("API_STORE_DRIVER", defaultStoreDriver)),
			PebblePath:       env.str("API_STORE_PEBBLE_PATH", defaultPebblePath),
			PostgresDSN:      env.str("API_STORE_POSTGRES_DSN", ""),
			CollectionPrefix: env.str("API_STORE_COLLECTION_PREFIX", defaultCollectionPrefix),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		AI: AIConfig{
			DeepSeekAPIKey:    env.str("API_AI_DEEPSEEK_API_KEY", ""),
			DeepSeekBaseURL:   env.str("API_AI_DEEPSEEK_BASE_URL", defaultDeepSeekBaseURL),
			GeminiAPIKey:      env.str("API_AI_GEMINI_API_KEY", ""),
			RequestTimeout:    env.duration("API_AI_REQUEST_TIMEOUT", defaultAIRequestTimeout),
			MaxImageDimension: env.number("API_AI_MAX_IMAGE_DIMENSION", defaultMaxImageDimension),
		},
		Events: EventsConfig{
			Driver:          strings.ToLower(env.str("API_EVENTS_DRIVER", defaultEventsDriver)),
			PubSubProjectID: env.str("API_EVENTS_PUBSUB_PROJECT_ID", ""),
			PubSubTopic:     env.str("API_EVENTS_PUBSUB_TOPIC", defaultQuotationTopic),
			KafkaBrokers:    env.list("API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:      env.str("API_EVENTS_KAFKA_TOPIC", defaultQuotationTopic),
		},
		Backup: BackupConfig{
			Bucket: env.str("API_BACKUP_BUCKET", ""),
			Prefix: strings.Trim(env.str("API_BACKUP_PREFIX", defaultBackupPrefix), "/"),
		},
		Security: SecurityConfig{
			RateLimitPerMinute: env.number("API_RATELIMIT_RESOLVE_PER_MIN", defaultRateLimitPerMinute),
			MaxBodyBytes:       int64(env.number("API_MAX_BODY_BYTES", defaultMaxBodyBytes)),
		},
		Idempotency: IdempotencyConfig{
			Header: env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Seed: SeedConfig{
			CatalogFile: env.str("API_SEED_CATALOG_FILE", ""),
		},
		Metrics: MetricsConfig{
			Enabled: env.flag("API_METRICS_ENABLED", true),
			Path:    env.str("API_METRICS_PATH", defaultMetricsPath),
		},
	}

	// Pub/Sub defaults to the Firestore project when unspecified.
	if cfg.Events.PubSubProjectID == "" {
		cfg.Events.PubSubProjectID = cfg.Firestore.ProjectID
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"AI.DeepSeekAPIKey", &cfg.AI.DeepSeekAPIKey},
		{"AI.GeminiAPIKey", &cfg.AI.GeminiAPIKey},
		{"Store.PostgresDSN", &cfg.Store.PostgresDSN},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Store.Driver {
	case StoreDriverPebble:
		if strings.TrimSpace(cfg.Store.PebblePath) == "" {
			missing = append(missing, "Store.PebblePath")
		}
	case StoreDriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case StoreDriverPostgres:
		if strings.TrimSpace(cfg.Store.PostgresDSN) == "" {
			missing = append(missing, "Store.PostgresDSN")
		}
	default:
		missing = append(missing, "Store.Driver")
	}
	switch cfg.Events.Driver {
	case EventsDriverNone:
	case EventsDriverPubSub:
		if cfg.Events.PubSubProjectID == "" {
			missing = append(missing, "Events.PubSubProjectID")
		}
		if cfg.Events.PubSubTopic == "" {
			missing = append(missing, "Events.PubSubTopic")
		}
	case EventsDriverKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
		if cfg.Events.KafkaTopic == "" {
			missing = append(missing, "Events.KafkaTopic")
		}
	default:
		missing = append(missing, "Events.Driver")
	}
	if cfg.AI.RequestTimeout <= 0 {
		missing = append(missing, "AI.RequestTimeout")
	}
	if cfg.AI.MaxImageDimension <= 0 {
		missing = append(missing, "AI.MaxImageDimension")
	}
	if cfg.Security.MaxBodyBytes <= 0 {
		missing = append(missing, "Security.MaxBodyBytes")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		missing = append(missing, "Metrics.Path")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var names []string
	seen := make(map[string]bool, len(required))
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] || resolved[name] != "" {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	values, err := godotenv.Read(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

// envSource looks a key up in the merged environment. Blank and unparsable values fall back to
// the default.
type envSource func(key string) (string, bool)

func (e envSource) raw(key string) string {
	value, _ := e(key)
	return strings.TrimSpace(value)
}

func (e envSource) str(key, fallback string) string {
	if value := e.raw(key); value != "" {
		return value
	}
	return fallback
}

func (e envSource) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.raw(key)); err == nil {
		return d
	}
	return fallback
}

func (e envSource) number(key string, fallback int) int {
	if n, err := strconv.Atoi(e.raw(key)); err == nil {
		return n
	}
	return fallback
}

func (e envSource) flag(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(e.raw(key)); err == nil {
		return b
	}
	switch strings.ToLower(e.raw(key)) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	return fallback
}

func (e envSource) list(key string) []string {
	out := []string{}
	for _, part := range strings.Split(e.raw(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
