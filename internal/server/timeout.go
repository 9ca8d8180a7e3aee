package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds total in-gateway time for a request by
// cancelling its context. Handlers and the proxy dispatcher observe
// the cancellation cooperatively; the outbound backend call is
// aborted when the deadline passes.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
