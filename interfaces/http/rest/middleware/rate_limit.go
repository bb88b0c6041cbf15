package middleware

import (
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"feedrank/pkg/auth"
	"feedrank/pkg/common"
	pkgerrors "feedrank/pkg/errors"
)

// RateLimit limits requests per authenticated user, or per client IP for anonymous callers.
// Limiter errors are logged and the request proceeds.
func RateLimit(limiter auth.RateLimiter, perMinute int, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if userID, ok := common.GetUserID(r.Context()); ok {
				key = "user:" + userID
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("Rate limiter error", zap.Error(err), zap.String("key", key))
			}
			if !allowed {
				w.Header().Set("Retry-After", "60")
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
				errorHandler.Handle(w, r, pkgerrors.NewRateLimitError(perMinute, "minute"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the request's remote host. chi's RealIP middleware has already
// rewritten RemoteAddr from the forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
