package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/socialhub/edge-gateway/internal/config"
	"github.com/socialhub/edge-gateway/internal/ratelimit"
)

type Server struct {
	Router *chi.Mux
	http   *http.Server
	logger *slog.Logger
}

// New assembles the gateway's HTTP surface. Middleware order mirrors
// the pipeline: request id and logging wrap everything, the error
// boundary sits inside them so panics are still logged, then headers,
// the in-gateway deadline, and admission control. Token validation is
// per-route and lives in the gateway handler.
func New(cfg *config.Config, logger *slog.Logger, limiter *ratelimit.Limiter, gateway *GatewayHandler) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "edge-gateway")
	})
	r.Use(HeadersMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(TimeoutMiddleware(cfg.Proxy.Timeout + 5*time.Second))

	// Liveness probe: not routed, not rate limited.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck
	})

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter, logger))
		r.Handle("/*", gateway)
	})

	return &Server{
		Router: r,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
