package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/repositories"
)

// ErrSettingsRepositoryMissing indicates the settings repository dependency is absent.
var ErrSettingsRepositoryMissing = errors.New("settings service: repository is not configured")

// ErrSettingsInvalidInput indicates an unknown credential kind or malformed settings.
var ErrSettingsInvalidInput = errors.New("settings service: invalid input")

// SettingsFallback carries server-wide extractor credentials used when the stored settings are blank.
type SettingsFallback struct {
	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	GeminiAPIKey    string
}

// SettingsServiceDeps bundles constructor inputs for the settings service.
type SettingsServiceDeps struct {
	Settings repositories.SettingsRepository
	Fallback SettingsFallback
	Logger   func(context.Context, string, map[string]any)
}

type settingsService struct {
	repo     repositories.SettingsRepository
	fallback SettingsFallback
	logger   func(context.Context, string, map[string]any)
}

var _ SettingsService = (*settingsService)(nil)

// NewSettingsService constructs the settings service.
func NewSettingsService(deps SettingsServiceDeps) (SettingsService, error) {
	if deps.Settings == nil {
		return nil, ErrSettingsRepositoryMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &settingsService{
		repo: deps.Settings,
		fallback: SettingsFallback{
			DeepSeekAPIKey:  strings.TrimSpace(deps.Fallback.DeepSeekAPIKey),
			DeepSeekBaseURL: strings.TrimSpace(deps.Fallback.DeepSeekBaseURL),
			GeminiAPIKey:    strings.TrimSpace(deps.Fallback.GeminiAPIKey),
		},
		logger: logger,
	}, nil
}

func (s *settingsService) Get(ctx context.Context) (AppSettings, error) {
	stored, err := s.repo.Get(ctx)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.DefaultAppSettings(), nil
		}
		return AppSettings{}, err
	}
	return NormalizeSettings(stored), nil
}

func (s *settingsService) Update(ctx context.Context, settings AppSettings) (AppSettings, error) {
	normalized := NormalizeSettings(settings)
	if err := s.repo.Save(ctx, normalized); err != nil {
		return AppSettings{}, err
	}
	s.logger(ctx, "settings.updated", map[string]any{
		"deepseekConfigured": normalized.DeepSeekAPIKey != "",
		"geminiConfigured":   normalized.GeminiAPIKey != "",
	})
	return normalized, nil
}

// Credentials prefers the stored per-store key and falls back to the server configuration.
func (s *settingsService) Credentials(ctx context.Context, kind CredentialKind) (ExtractorCredentials, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return ExtractorCredentials{}, err
	}
	switch kind {
	case CredentialDeepSeek:
		creds := ExtractorCredentials{APIKey: settings.DeepSeekAPIKey, BaseURL: settings.DeepSeekBaseURL}
		if creds.APIKey == "" {
			creds.APIKey = s.fallback.DeepSeekAPIKey
			if s.fallback.DeepSeekBaseURL != "" && creds.BaseURL == domain.DefaultDeepSeekBaseURL {
				creds.BaseURL = s.fallback.DeepSeekBaseURL
			}
		}
		return creds, nil
	case CredentialGemini:
		key := settings.GeminiAPIKey
		if key == "" {
			key = s.fallback.GeminiAPIKey
		}
		return ExtractorCredentials{APIKey: key}, nil
	default:
		return ExtractorCredentials{}, fmt.Errorf("%w: unknown credential kind %q", ErrSettingsInvalidInput, kind)
	}
}

// NormalizeSettings trims every field and restores the default base URL when it is blank.
func NormalizeSettings(settings AppSettings) AppSettings {
	settings.GeminiAPIKey = strings.TrimSpace(settings.GeminiAPIKey)
	settings.DeepSeekAPIKey = strings.TrimSpace(settings.DeepSeekAPIKey)
	settings.DeepSeekBaseURL = strings.TrimRight(strings.TrimSpace(settings.DeepSeekBaseURL), "/")
	if settings.DeepSeekBaseURL == "" {
		settings.DeepSeekBaseURL = domain.DefaultDeepSeekBaseURL
	}
	settings.CashierName = strings.TrimSpace(settings.CashierName)
	return settings
}
