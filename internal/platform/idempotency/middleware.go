package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smartprice/api/internal/platform/httpx"
	"github.com/smartprice/api/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	anonymousClient   = "anonymous"
)

// Logger receives store failures that cannot be surfaced to the client.
type Logger interface {
	Printf(format string, args ...any)
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*guard)

// WithHeader reads the key from name instead of Idempotency-Key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long a completed response is replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithRequired rejects unkeyed writes with 400 instead of letting them through.
func WithRequired(required bool) MiddlewareOption {
	return func(g *guard) { g.required = required }
}

// WithMaxBody caps the buffered request body.
func WithMaxBody(limit int64) MiddlewareOption {
	return func(g *guard) {
		if limit > 0 {
			g.maxBody = limit
		}
	}
}

func WithLogger(logger Logger) MiddlewareOption {
	return func(g *guard) { g.logger = logger }
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

type guard struct {
	store    Store
	header   string
	ttl      time.Duration
	required bool
	maxBody  int64
	clock    func() time.Time
	logger   Logger
}

// Middleware replays the stored response when a write is retried with the same key. Keys are
// scoped per client address. A 5xx outcome releases the key so the retry runs again.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{
		store:   store,
		header:  defaultHeaderName,
		ttl:     DefaultTTL,
		maxBody: httpx.DefaultMaxBodyBytes,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

func guardedMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	key := strings.TrimSpace(r.Header.Get(g.header))
	if !guardedMethod(r.Method) || (key == "" && !g.required) {
		next.ServeHTTP(w, r)
		return
	}
	if key == "" {
		respondError(w, r, http.StatusBadRequest, "idempotency_key_required", "missing idempotency key header")
		return
	}

	body, err := readAndReplayBody(r, g.maxBody)
	switch {
	case errors.Is(err, httpx.ErrBodyTooLarge):
		respondError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds the allowed size")
		return
	case err != nil:
		respondError(w, r, http.StatusBadRequest, "invalid_body", "unable to read request body")
		return
	}

	client := extractRequester(r.Context())
	fingerprint := requestFingerprint(r, body, client)
	storeKey := scopedKey(key, client)

	reservation, err := g.store.Reserve(r.Context(), storeKey, fingerprint, g.clock().UTC(), g.ttl)
	if errors.Is(err, ErrFingerprintMismatch) {
		respondError(w, r, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	}
	if err != nil {
		g.logf("idempotency: reserve %s: %v", key, err)
		respondError(w, r, http.StatusInternalServerError, "idempotency_store_error", "unable to process idempotency key")
		return
	}
	switch reservation.State {
	case ReservationStateCompleted:
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		respondError(w, r, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	}

	rec := &bufferedWriter{header: make(http.Header)}
	next.ServeHTTP(rec, r)
	status := rec.statusCode()

	if status >= http.StatusInternalServerError {
		if err := g.store.Release(r.Context(), storeKey, fingerprint); err != nil {
			g.logf("idempotency: release %s after %d: %v", key, status, err)
		}
		g.flush(w, rec, key)
		return
	}

	resp := Response{Status: status, Headers: rec.header.Clone(), Body: rec.body.Bytes()}
	if err := g.store.SaveResponse(r.Context(), storeKey, fingerprint, resp, g.clock().UTC(), g.ttl); err != nil {
		g.logf("idempotency: save %s for %s: %v", key, client, err)
		if err := g.store.Release(r.Context(), storeKey, fingerprint); err != nil {
			g.logf("idempotency: release %s after save failure: %v", key, err)
		}
		respondError(w, r, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}
	g.flush(w, rec, key)
}

func (g *guard) flush(w http.ResponseWriter, rec *bufferedWriter, key string) {
	if err := rec.writeTo(w); err != nil {
		g.logf("idempotency: write response for %s: %v", key, err)
	}
}

func (g *guard) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

func readAndReplayBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := httpx.ReadBody(r, limit)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// requestFingerprint binds a key to the method, target, content type, client and body.
func requestFingerprint(r *http.Request, body []byte, client string) string {
	bodyHash := ""
	if len(body) > 0 {
		bodyHash = sha256Hex(body)
	}
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Host,
		r.Header.Get("Content-Type"),
		client,
		bodyHash,
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

// extractRequester scopes keys per client address; the API has no user accounts.
func extractRequester(ctx context.Context) string {
	if ip := strings.TrimSpace(requestctx.ClientIP(ctx)); ip != "" {
		return ip
	}
	return anonymousClient
}

func scopedKey(key, client string) string {
	client = strings.TrimSpace(client)
	if client == "" {
		client = anonymousClient
	}
	return strings.TrimSpace(key) + "|" + client
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name := range header {
		header.Del(name)
	}
	for name, values := range headersFromRecord(record.ResponseHeaders) {
		header[name] = values
	}
	header.Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

// bufferedWriter holds the downstream response until the outcome has been stored.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 && status > 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(data []byte) (int, error) {
	b.WriteHeader(http.StatusOK)
	return b.body.Write(data)
}

func (b *bufferedWriter) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedWriter) writeTo(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = append([]string(nil), values...)
	}
	w.WriteHeader(b.statusCode())
	if b.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(b.body.Bytes())
	return err
}
