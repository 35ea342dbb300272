// Package idempotency replays stored responses for retried requests carrying the same key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a stored key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState tells the middleware what to do with a request.
type ReservationState int

const (
	// ReservationStateNew lets the request run.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted replays Record.
	ReservationStateCompleted
	// ReservationStatePending rejects the request while the first attempt is still running.
	ReservationStatePending
)

// Reservation is the outcome of Store.Reserve.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is one stored key. Response fields are empty while Status is pending.
type Record struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          Status              `firestore:"status"`
	ResponseStatus  int                 `firestore:"response_status"`
	ResponseHeaders map[string][]string `firestore:"response_headers"`
	ResponseBody    []byte              `firestore:"response_body"`
	CreatedAt       time.Time           `firestore:"created_at"`
	UpdatedAt       time.Time           `firestore:"updated_at"`
	ExpiresAt       time.Time           `firestore:"expires_at"`
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// reserve decides the outcome for a key given what the store currently holds. claim is true when
// the caller must persist next as a new pending record. Expiry is checked before the fingerprint,
// so a stale key may be reused for a different request.
func reserve(existing Record, found bool, key, fingerprint string, now time.Time, ttl time.Duration) (res Reservation, claim bool, err error) {
	if found && !existing.expired(now) {
		switch {
		case existing.Fingerprint != fingerprint:
			return Reservation{}, false, ErrFingerprintMismatch
		case existing.Status == StatusCompleted:
			return Reservation{State: ReservationStateCompleted, Record: existing}, false, nil
		default:
			return Reservation{State: ReservationStatePending, Record: existing}, false, nil
		}
	}
	next := Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(normalizeTTL(ttl)),
	}
	return Reservation{State: ReservationStateNew, Record: next}, true, nil
}

// complete fills record with resp. A missing record (found false) is recreated.
func complete(record Record, found bool, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) (Record, error) {
	if found && record.Fingerprint != fingerprint {
		return Record{}, ErrFingerprintMismatch
	}
	if !found {
		record = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}
	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = sanitizeHeaders(resp.Headers)
	record.ResponseBody = nil
	if len(resp.Body) > 0 {
		record.ResponseBody = append([]byte(nil), resp.Body...)
	}
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(normalizeTTL(ttl))
	return record, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// Response is what gets captured from the wrapped handler.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and responses. Implementations must make Reserve atomic per key.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch means the key was already used for a different request body or route.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// replayedHeaders are the response headers worth storing. Everything else is either hop-by-hop,
// recomputed by net/http, or request specific (X-Request-Id, trace headers).
var replayedHeaders = map[string]struct{}{
	"Content-Type":         {},
	"Content-Disposition":  {},
	"Location":             {},
	"Retry-After":          {},
	"X-Backup-Archive-Uri": {},
}

// compositeKey derives the document id. The fingerprint is checked separately so a reused key
// with a different body is reported instead of silently creating a second record.
func compositeKey(key, _ string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sanitizeHeaders(header http.Header) map[string][]string {
	var kept map[string][]string
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if _, ok := replayedHeaders[canonical]; !ok || len(values) == 0 {
			continue
		}
		if kept == nil {
			kept = make(map[string][]string, len(replayedHeaders))
		}
		kept[canonical] = append([]string(nil), values...)
	}
	return kept
}

func headersFromRecord(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		header[name] = append([]string(nil), vals...)
	}
	return header
}
