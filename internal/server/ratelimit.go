package server

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/socialhub/edge-gateway/internal/ratelimit"
)

// RateLimitMiddleware is the admission gate. Every request costs one
// unit against the caller's network address, authenticated or not;
// denied requests are answered here and never reach routing. Standard
// X-RateLimit headers report the remaining quota on admits.
func RateLimitMiddleware(limiter *ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := clientAddr(r)

			decision, err := limiter.Allow(r.Context(), identity)
			if err != nil {
				AddError(r.Context(), err)
				respondInternalError(w, err)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

			if !decision.Allowed {
				logger.Warn("rate limit exceeded",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("client_addr", identity),
					slog.String("path", r.URL.Path),
				)
				respondTooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr normalizes the caller's network address to a host. RealIP
// middleware has already rewritten RemoteAddr from X-Forwarded-For
// when the request came through a trusted front.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
