package handlers

import (
	"net/http"
	"time"

	"github.com/smartprice/api/internal/platform/httpx"
)

type handlerConfig struct {
	maxBody            int64
	clock              func() time.Time
	resolveMiddlewares []func(http.Handler) http.Handler
}

// HandlerOption customises the route handlers.
type HandlerOption func(*handlerConfig)

func newHandlerConfig(opts []HandlerOption) handlerConfig {
	cfg := handlerConfig{
		maxBody: httpx.DefaultMaxBodyBytes,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithMaxBodyBytes caps request bodies, including raw spreadsheet and image uploads.
func WithMaxBodyBytes(limit int64) HandlerOption {
	return func(cfg *handlerConfig) {
		if limit > 0 {
			cfg.maxBody = limit
		}
	}
}

// WithClock overrides the time source used for default quotation dates.
func WithClock(clock func() time.Time) HandlerOption {
	return func(cfg *handlerConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithResolveMiddlewares wraps POST /quotes:resolve, typically with rate limiting and idempotency.
func WithResolveMiddlewares(mw ...func(http.Handler) http.Handler) HandlerOption {
	return func(cfg *handlerConfig) {
		cfg.resolveMiddlewares = append(cfg.resolveMiddlewares, mw...)
	}
}
