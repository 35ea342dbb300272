package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

type TxOption func(*txOptions)

type txOptions struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts bounds how often Firestore retries a contended transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(o *txOptions) {
		if attempts > 0 {
			o.attempts = attempts
		}
	}
}

// RunTransaction runs fn with retries. fn may run more than once and must not leak side effects
// outside tx. A caller deadline shorter than the transaction timeout is kept.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	o := txOptions{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > o.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestore.MaxAttempts(o.attempts))
	return WrapError("transaction", err)
}
