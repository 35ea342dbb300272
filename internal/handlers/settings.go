package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/platform/httpx"
	"github.com/smartprice/api/internal/services"
)

const maskedKeyPrefix = "••••"

// SettingsHandlers exposes the settings document. API keys never leave the server unmasked.
type SettingsHandlers struct {
	settings services.SettingsService
	cfg      handlerConfig
}

// NewSettingsHandlers constructs settings handlers.
func NewSettingsHandlers(settings services.SettingsService, opts ...HandlerOption) *SettingsHandlers {
	return &SettingsHandlers{settings: settings, cfg: newHandlerConfig(opts)}
}

// Routes registers settings endpoints.
func (h *SettingsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.putSettings)
}

type settingsPayload struct {
	GeminiAPIKey     string `json:"geminiApiKey"`
	GeminiConfigured bool   `json:"geminiConfigured"`
	DeepSeekAPIKey   string `json:"deepseekApiKey"`
	DeepSeekReady    bool   `json:"deepseekConfigured"`
	DeepSeekBaseURL  string `json:"deepseekBaseUrl"`
	CashierName      string `json:"cashierName"`
}

// updateSettingsRequest leaves a field unchanged when it is omitted or echoes the masked value.
type updateSettingsRequest struct {
	GeminiAPIKey    *string `json:"geminiApiKey"`
	DeepSeekAPIKey  *string `json:"deepseekApiKey"`
	DeepSeekBaseURL *string `json:"deepseekBaseUrl"`
	CashierName     *string `json:"cashierName"`
}

func (h *SettingsHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "settings unavailable", http.StatusServiceUnavailable))
		return
	}
	settings, err := h.settings.Get(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildSettingsPayload(settings))
}

func (h *SettingsHandlers) putSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "settings unavailable", http.StatusServiceUnavailable))
		return
	}
	var req updateSettingsRequest
	if err := httpx.DecodeJSON(r, &req, h.cfg.maxBody); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	current, err := h.settings.Get(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	next := current
	next.GeminiAPIKey = mergeSecret(current.GeminiAPIKey, req.GeminiAPIKey)
	next.DeepSeekAPIKey = mergeSecret(current.DeepSeekAPIKey, req.DeepSeekAPIKey)
	if req.DeepSeekBaseURL != nil {
		next.DeepSeekBaseURL = *req.DeepSeekBaseURL
	}
	if req.CashierName != nil {
		next.CashierName = *req.CashierName
	}

	saved, err := h.settings.Update(ctx, next)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildSettingsPayload(saved))
}

func buildSettingsPayload(settings domain.AppSettings) settingsPayload {
	return settingsPayload{
		GeminiAPIKey:     maskSecret(settings.GeminiAPIKey),
		GeminiConfigured: settings.GeminiAPIKey != "",
		DeepSeekAPIKey:   maskSecret(settings.DeepSeekAPIKey),
		DeepSeekReady:    settings.DeepSeekAPIKey != "",
		DeepSeekBaseURL:  settings.DeepSeekBaseURL,
		CashierName:      settings.CashierName,
	}
}

// maskSecret keeps the last four characters of keys long enough that doing so reveals little.
func maskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= 8 {
		return maskedKeyPrefix
	}
	return maskedKeyPrefix + string(runes[len(runes)-4:])
}

func mergeSecret(current string, incoming *string) string {
	if incoming == nil {
		return current
	}
	if strings.HasPrefix(*incoming, maskedKeyPrefix) && *incoming == maskSecret(current) {
		return current
	}
	return *incoming
}
