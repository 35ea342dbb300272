package main

import (
	"context"
	"testing"
	"time"

	"github.com/smartprice/api/internal/platform/config"
	"github.com/smartprice/api/internal/platform/idempotency"
	"github.com/smartprice/api/internal/platform/jobs"
	"github.com/smartprice/api/internal/repositories/pebblestore"
)

func TestRequiredSecretNames(t *testing.T) {
	if got := requiredSecretNames(map[string]string{"API_STORE_DRIVER": "pebble"}); len(got) != 0 {
		t.Fatalf("expected no required secrets for pebble, got %v", got)
	}
	got := requiredSecretNames(map[string]string{"API_STORE_DRIVER": " Postgres "})
	if len(got) != 1 || got[0] != "Store.PostgresDSN" {
		t.Fatalf("expected postgres dsn to be required, got %v", got)
	}
}

func TestBuildInfoFromEnvDefaults(t *testing.T) {
	started := time.Date(2026, time.October, 18, 8, 0, 0, 0, time.UTC)
	info := buildInfoFromEnv(map[string]string{}, config.Config{}, started)
	if info.Version != "dev" || info.CommitSHA != "unknown" || info.Environment != "local" {
		t.Fatalf("unexpected defaults %#v", info)
	}

	info = buildInfoFromEnv(map[string]string{
		"API_BUILD_VERSION":    "1.4.0",
		"API_BUILD_COMMIT_SHA": "abc123",
	}, config.Config{Environment: "prod"}, started)
	if info.Version != "1.4.0" || info.CommitSHA != "abc123" || info.Environment != "prod" || !info.StartedAt.Equal(started) {
		t.Fatalf("unexpected build info %#v", info)
	}
}

func TestSecretProjectIDPrecedence(t *testing.T) {
	env := map[string]string{
		"GOOGLE_CLOUD_PROJECT":     "fallback",
		"API_FIRESTORE_PROJECT_ID": "firestore",
	}
	if got := secretProjectID(env); got != "firestore" {
		t.Fatalf("expected firestore project, got %q", got)
	}
	env["API_SECRET_PROJECT_ID"] = "secrets"
	if got := secretProjectID(env); got != "secrets" {
		t.Fatalf("expected explicit secret project, got %q", got)
	}
	if got := secretProjectID(nil); got != "" {
		t.Fatalf("expected empty project, got %q", got)
	}
}

func TestNewEventPublisherDefaultsToNoop(t *testing.T) {
	publisher, stop, err := newEventPublisher(context.Background(), config.Config{
		Events: config.EventsConfig{Driver: config.EventsDriverNone},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stop()
	if _, ok := publisher.(jobs.NoopEventPublisher); !ok {
		t.Fatalf("expected noop publisher, got %T", publisher)
	}
}

func TestNewBackupArchiverWithoutBucket(t *testing.T) {
	archiver, closeFn, err := newBackupArchiver(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if archiver != nil {
		t.Fatalf("expected no archiver without a bucket, got %T", archiver)
	}
}

func TestNewIdempotencyStoreUsesMemoryOutsideFirestore(t *testing.T) {
	store, err := pebblestore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	defer store.Close(context.Background())

	idem, err := newIdempotencyStore(context.Background(), store, "smartprice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := idem.(*idempotency.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", idem)
	}
}
