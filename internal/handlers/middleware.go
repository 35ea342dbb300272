package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/smartprice/api/internal/platform/requestctx"
)

// clientIPMiddleware records the caller address after middleware.RealIP has rewritten RemoteAddr.
func clientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithClientIP(r.Context(), ip)))
	})
}
