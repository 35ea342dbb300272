package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/smartprice/api/internal/domain"
)

func TestSettingsHandlers_GetMasksKeys(t *testing.T) {
	settings := &stubSettings{settings: domain.AppSettings{
		DeepSeekAPIKey:  "sk-1234567890abcd",
		GeminiAPIKey:    "short",
		DeepSeekBaseURL: domain.DefaultDeepSeekBaseURL,
		CashierName:     "Amy",
	}}
	h := NewSettingsHandlers(settings)

	rr := serve(h.Routes, http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "sk-1234567890abcd")

	var body settingsPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "••••abcd", body.DeepSeekAPIKey)
	assert.Equal(t, "••••", body.GeminiAPIKey)
	assert.True(t, body.DeepSeekReady)
	assert.True(t, body.GeminiConfigured)
	assert.Equal(t, "Amy", body.CashierName)
}

func TestSettingsHandlers_PutKeepsMaskedAndOmittedKeys(t *testing.T) {
	settings := &stubSettings{settings: domain.AppSettings{
		DeepSeekAPIKey:  "sk-1234567890abcd",
		GeminiAPIKey:    "gm-key-000000",
		DeepSeekBaseURL: domain.DefaultDeepSeekBaseURL,
	}}
	h := NewSettingsHandlers(settings)

	rr := serve(h.Routes, http.MethodPut, "/settings", `{"deepseekApiKey":"••••abcd","cashierName":" Bob ","deepseekBaseUrl":"https://proxy.example/"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, settings.updates, 1)

	saved := settings.settings
	assert.Equal(t, "sk-1234567890abcd", saved.DeepSeekAPIKey)
	assert.Equal(t, "gm-key-000000", saved.GeminiAPIKey)
	assert.Equal(t, "Bob", saved.CashierName)
	assert.Equal(t, "https://proxy.example", saved.DeepSeekBaseURL)
}

func TestSettingsHandlers_PutReplacesAndClearsKeys(t *testing.T) {
	settings := &stubSettings{settings: domain.AppSettings{DeepSeekAPIKey: "sk-old-old-old", GeminiAPIKey: "gm-old-old-old"}}
	h := NewSettingsHandlers(settings)

	rr := serve(h.Routes, http.MethodPut, "/settings", `{"deepseekApiKey":"sk-new","geminiApiKey":""}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "sk-new", settings.settings.DeepSeekAPIKey)
	assert.Empty(t, settings.settings.GeminiAPIKey)
	assert.Equal(t, domain.DefaultDeepSeekBaseURL, settings.settings.DeepSeekBaseURL)
}

func TestSettingsHandlers_StoreUnavailable(t *testing.T) {
	h := NewSettingsHandlers(&stubSettings{err: storeUnavailable{}})
	rr := serve(h.Routes, http.MethodGet, "/settings", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
