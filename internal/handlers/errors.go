package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/smartprice/api/internal/platform/httpx"
	"github.com/smartprice/api/internal/platform/observability"
	"github.com/smartprice/api/internal/repositories"
	"github.com/smartprice/api/internal/services"
)

// writeServiceError maps service and repository errors onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var cfgErr *services.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		httpx.WriteError(ctx, w, httpx.NewError("extractor_not_configured", err.Error(), http.StatusPreconditionFailed).
			WithDetails(map[string]any{"setting": cfgErr.Setting}))
		return
	case errors.Is(err, services.ErrOrderResolutionConfiguration):
		httpx.WriteError(ctx, w, httpx.NewError("extractor_not_configured", err.Error(), http.StatusPreconditionFailed))
		return
	case errors.Is(err, services.ErrOrderResolutionMalformed):
		httpx.WriteError(ctx, w, httpx.NewError("extractor_response_malformed", "extractor returned an unusable response", http.StatusBadGateway))
		return
	case errors.Is(err, services.ErrOrderResolutionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("extractor_unavailable", "extractor is unavailable", http.StatusBadGateway))
		return
	case errors.Is(err, httpx.ErrBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
		return
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
		return
	case errors.Is(err, services.ErrCatalogInvalidInput),
		errors.Is(err, services.ErrQuotationInvalidInput),
		errors.Is(err, services.ErrSettingsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrBackupInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_backup", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrPriceImportUnreadable):
		httpx.WriteError(ctx, w, httpx.NewError("unreadable_table", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrPriceImportEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("empty_table", err.Error(), http.StatusUnprocessableEntity))
		return
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
			return
		case repoErr.IsConflict():
			httpx.WriteError(ctx, w, httpx.NewError("store_conflict", "store changed concurrently; retry", http.StatusConflict))
			return
		case repoErr.IsUnavailable():
			observability.FromContext(ctx).Warn("store unavailable", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "store unavailable", http.StatusServiceUnavailable))
			return
		}
	}

	observability.FromContext(ctx).Error("unhandled service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, httpx.ErrBodyTooLarge) {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}
