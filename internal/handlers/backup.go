package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smartprice/api/internal/platform/httpx"
	"github.com/smartprice/api/internal/services"
)

// ArchiveURIHeader carries the Cloud Storage location of an exported backup, when archiving is on.
const ArchiveURIHeader = "X-Backup-Archive-Uri"

// BackupHandlers exposes export and restore of the whole store.
type BackupHandlers struct {
	backups services.BackupService
	cfg     handlerConfig
}

// NewBackupHandlers constructs backup handlers.
func NewBackupHandlers(backups services.BackupService, opts ...HandlerOption) *BackupHandlers {
	return &BackupHandlers{backups: backups, cfg: newHandlerConfig(opts)}
}

// Routes registers backup endpoints.
func (h *BackupHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/backup", h.exportBackup)
	r.Post("/backup", h.importBackup)
}

func (h *BackupHandlers) exportBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.backups == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "backup unavailable", http.StatusServiceUnavailable))
		return
	}
	export, err := h.backups.Export(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(export.FileName))
	if export.ArchiveURI != "" {
		w.Header().Set(ArchiveURIHeader, export.ArchiveURI)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

type backupImportResponse struct {
	Products  int    `json:"products"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (h *BackupHandlers) importBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.backups == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "backup unavailable", http.StatusServiceUnavailable))
		return
	}
	data, err := httpx.ReadBody(r, h.cfg.maxBody)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	result, err := h.backups.Import(ctx, data)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := backupImportResponse{Products: result.Products}
	if !result.Timestamp.IsZero() {
		resp.Timestamp = result.Timestamp.Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
