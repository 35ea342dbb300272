package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	domain "github.com/smartprice/api/internal/domain"
)

type recordingArchiver struct {
	ids  []string
	data [][]byte
	err  error
}

func (a *recordingArchiver) Archive(ctx context.Context, backupID string, data []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.ids = append(a.ids, backupID)
	a.data = append(a.data, data)
	return "gs://bucket/backups/backup-" + backupID + ".json", nil
}

func TestBackupServiceExport(t *testing.T) {
	now := time.Date(2026, time.October, 18, 8, 0, 0, 0, time.UTC)
	products := &memoryProductRepo{products: []domain.Product(widgetCatalog())}
	settings := &memorySettingsRepo{settings: &AppSettings{DeepSeekAPIKey: "sk", DeepSeekBaseURL: domain.DefaultDeepSeekBaseURL}}
	archiver := &recordingArchiver{}

	svc, err := NewBackupService(BackupServiceDeps{
		Products:    products,
		Settings:    settings,
		Archiver:    archiver,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "01HBACKUP" },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	export, err := svc.Export(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if export.FileName != "smart-price-data-2026-10-18.json" {
		t.Fatalf("unexpected file name %q", export.FileName)
	}
	if export.ArchiveURI != "gs://bucket/backups/backup-01HBACKUP.json" {
		t.Fatalf("unexpected archive uri %q", export.ArchiveURI)
	}

	var decoded map[string]any
	if err := json.Unmarshal(export.Data, &decoded); err != nil {
		t.Fatalf("export is not json: %v", err)
	}
	if decoded["version"].(float64) != 1 || int64(decoded["timestamp"].(float64)) != now.UnixMilli() {
		t.Fatalf("unexpected header fields %#v", decoded)
	}
	if len(decoded["products"].([]any)) != 2 {
		t.Fatalf("expected two products, got %#v", decoded["products"])
	}
	if string(archiver.data[0]) != string(export.Data) {
		t.Fatal("expected archived bytes to match the export")
	}
}

func TestBackupServiceExportWithoutSettingsOrArchive(t *testing.T) {
	svc, _ := NewBackupService(BackupServiceDeps{
		Products: &memoryProductRepo{},
		Settings: &memorySettingsRepo{},
	})
	export, err := svc.Export(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if export.ArchiveURI != "" {
		t.Fatalf("expected no archive, got %q", export.ArchiveURI)
	}
	if export.Backup.Settings != domain.DefaultAppSettings() || export.Backup.Products == nil {
		t.Fatalf("unexpected backup %#v", export.Backup)
	}
}

func TestBackupServiceExportArchiveFailure(t *testing.T) {
	svc, _ := NewBackupService(BackupServiceDeps{
		Products: &memoryProductRepo{},
		Settings: &memorySettingsRepo{},
		Archiver: &recordingArchiver{err: errors.New("bucket missing")},
	})
	if _, err := svc.Export(context.Background()); err == nil {
		t.Fatal("expected archive failure to surface")
	}
}

func TestBackupServiceImport(t *testing.T) {
	products := &memoryProductRepo{products: []domain.Product{{ID: "old", Name: "Old"}}}
	settings := &memorySettingsRepo{settings: &AppSettings{DeepSeekAPIKey: "keep", DeepSeekBaseURL: domain.DefaultDeepSeekBaseURL}}
	svc, _ := NewBackupService(BackupServiceDeps{Products: products, Settings: settings})

	payload := `{"version":1,"timestamp":1760774400000,"products":[{"id":"a","name":"Widget","prices":{"wholesale":{"box":100,"item":20}}}],"settings":{"cashierName":"Amy"}}`
	result, err := svc.Import(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Products != 1 || result.Timestamp.UnixMilli() != 1760774400000 {
		t.Fatalf("unexpected result %#v", result)
	}
	if len(products.products) != 1 || products.products[0].Prices.Wholesale.Box != 100 {
		t.Fatalf("expected products replaced, got %#v", products.products)
	}
	expected := AppSettings{DeepSeekBaseURL: domain.DefaultDeepSeekBaseURL, CashierName: "Amy"}
	if *settings.settings != expected {
		t.Fatalf("expected settings merged over defaults, got %#v", *settings.settings)
	}
}

func TestBackupServiceImportKeepsSettingsWhenAbsent(t *testing.T) {
	settings := &memorySettingsRepo{settings: &AppSettings{DeepSeekAPIKey: "keep"}}
	svc, _ := NewBackupService(BackupServiceDeps{Products: &memoryProductRepo{}, Settings: settings})

	if _, err := svc.Import(context.Background(), []byte(`{"products":[]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.saved != 0 || settings.settings.DeepSeekAPIKey != "keep" {
		t.Fatalf("expected settings untouched, got %#v", settings.settings)
	}
}

func TestBackupServiceImportRejectsInvalidFiles(t *testing.T) {
	products := &memoryProductRepo{products: []domain.Product{{ID: "old", Name: "Old"}}}
	svc, _ := NewBackupService(BackupServiceDeps{Products: products, Settings: &memorySettingsRepo{}})

	for _, payload := range []string{
		`not json`,
		`{"version":1}`,
		`{"products":{"a":1}}`,
		`{"products":null}`,
		`[]`,
	} {
		if _, err := svc.Import(context.Background(), []byte(payload)); !errors.Is(err, ErrBackupInvalid) {
			t.Fatalf("expected ErrBackupInvalid for %s, got %v", payload, err)
		}
	}
	if products.mutations != 0 {
		t.Fatal("expected invalid imports not to write")
	}
}
