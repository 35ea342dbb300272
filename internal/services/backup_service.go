package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/repositories"
)

// ErrBackupInvalid indicates the uploaded file is not a backup this service can restore.
var ErrBackupInvalid = errors.New("backup service: invalid backup file")

// BackupArchiver stores a rendered backup somewhere durable and returns its location.
type BackupArchiver interface {
	Archive(ctx context.Context, backupID string, data []byte) (string, error)
}

// BackupServiceDeps bundles constructor inputs for the backup service.
type BackupServiceDeps struct {
	Products    repositories.ProductRepository
	Settings    repositories.SettingsRepository
	Archiver    BackupArchiver
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type backupService struct {
	products repositories.ProductRepository
	settings repositories.SettingsRepository
	archiver BackupArchiver
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ BackupService = (*backupService)(nil)

// NewBackupService constructs the backup service. Archiver is optional.
func NewBackupService(deps BackupServiceDeps) (BackupService, error) {
	if deps.Products == nil || deps.Settings == nil {
		return nil, errors.New("backup service: product and settings repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &backupService{
		products: deps.Products,
		settings: deps.Settings,
		archiver: deps.Archiver,
		now:      func() time.Time { return clock().UTC() },
		newID:    newID,
		logger:   logger,
	}, nil
}

func (s *backupService) Export(ctx context.Context) (BackupExport, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return BackupExport{}, err
	}
	if products == nil {
		products = []Product{}
	}
	settings, err := s.settings.Get(ctx)
	switch {
	case repositories.IsNotFound(err):
		settings = domain.DefaultAppSettings()
	case err != nil:
		return BackupExport{}, err
	}

	now := s.now()
	backup := Backup{
		Version:   domain.BackupVersion,
		Timestamp: now.UnixMilli(),
		Products:  products,
		Settings:  settings,
	}
	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return BackupExport{}, fmt.Errorf("backup service: encode backup: %w", err)
	}

	export := BackupExport{
		Backup:   backup,
		Data:     data,
		FileName: fmt.Sprintf("smart-price-data-%s.json", now.Format("2006-01-02")),
	}
	if s.archiver != nil {
		uri, err := s.archiver.Archive(ctx, s.newID(), data)
		if err != nil {
			return BackupExport{}, fmt.Errorf("backup service: archive: %w", err)
		}
		export.ArchiveURI = uri
	}

	s.logger(ctx, "backup.exported", map[string]any{
		"products": len(products),
		"archive":  export.ArchiveURI,
	})
	return export, nil
}

// backupFile mirrors Backup but keeps the raw fields so presence can be checked.
type backupFile struct {
	Version   int             `json:"version"`
	Timestamp int64           `json:"timestamp"`
	Products  json.RawMessage `json:"products"`
	Settings  json.RawMessage `json:"settings"`
}

// Import replaces products and, when the file carries them, settings.
func (s *backupService) Import(ctx context.Context, data []byte) (BackupImportResult, error) {
	var file backupFile
	if err := json.Unmarshal(data, &file); err != nil {
		return BackupImportResult{}, fmt.Errorf("%w: %v", ErrBackupInvalid, err)
	}
	raw := bytes.TrimSpace(file.Products)
	if len(raw) == 0 || raw[0] != '[' {
		return BackupImportResult{}, fmt.Errorf("%w: products array is missing", ErrBackupInvalid)
	}
	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return BackupImportResult{}, fmt.Errorf("%w: products: %v", ErrBackupInvalid, err)
	}

	var settings *AppSettings
	if rawSettings := bytes.TrimSpace(file.Settings); len(rawSettings) > 0 && !bytes.Equal(rawSettings, []byte("null")) {
		merged := domain.DefaultAppSettings()
		if err := json.Unmarshal(rawSettings, &merged); err != nil {
			return BackupImportResult{}, fmt.Errorf("%w: settings: %v", ErrBackupInvalid, err)
		}
		normalized := NormalizeSettings(merged)
		settings = &normalized
	}

	if _, err := s.products.Mutate(ctx, func([]Product) ([]Product, error) {
		return products, nil
	}); err != nil {
		return BackupImportResult{}, err
	}
	if settings != nil {
		if err := s.settings.Save(ctx, *settings); err != nil {
			return BackupImportResult{}, err
		}
	}

	result := BackupImportResult{Products: len(products)}
	if file.Timestamp > 0 {
		result.Timestamp = time.UnixMilli(file.Timestamp).UTC()
	}
	s.logger(ctx, "backup.imported", map[string]any{
		"products":        result.Products,
		"settingsRestore": settings != nil,
		"version":         file.Version,
	})
	return result, nil
}
