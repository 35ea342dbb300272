package idempotency

import (
	"context"
	"time"
)

const defaultCleanupLimit = 200

// RunJanitor removes expired records every interval until ctx is cancelled. Each sweep deletes at
// most limit records; a full sweep is repeated immediately so large backlogs drain quickly.
func RunJanitor(ctx context.Context, store Store, interval time.Duration, limit int, clock func() time.Time, logger Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	if clock == nil {
		clock = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			removed, err := store.CleanupExpired(ctx, clock().UTC(), limit)
			if err != nil {
				if logger != nil && ctx.Err() == nil {
					logger.Printf("idempotency: cleanup failed: %v", err)
				}
				break
			}
			if removed < limit {
				break
			}
		}
	}
}
