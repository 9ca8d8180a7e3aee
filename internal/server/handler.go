package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/socialhub/edge-gateway/internal/auth"
	"github.com/socialhub/edge-gateway/internal/route"
)

// identityKey is the context key for the authenticated user id.
type identityKey struct{}

// IdentityFromContext returns the authenticated user id, or "" when
// the route did not require a credential.
func IdentityFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey{}).(string); ok {
		return id
	}
	return ""
}

// GatewayHandler is the dispatch pipeline past admission control:
// route resolution, conditional token validation, and the proxy
// forward. It terminates every failure itself so nothing propagates
// past the error boundary.
type GatewayHandler struct {
	table      *route.Table
	validator  *auth.Validator
	dispatcher Dispatcher
	logger     *slog.Logger
}

// Dispatcher is the proxy contract the handler forwards through.
// Satisfied by proxy.Dispatcher; faked in tests.
type Dispatcher interface {
	Forward(w http.ResponseWriter, r *http.Request, rule *route.Rule, identity string) error
}

func NewGatewayHandler(table *route.Table, validator *auth.Validator, dispatcher Dispatcher, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		table:      table,
		validator:  validator,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rule := h.table.Resolve(r.URL.Path)
	if rule == nil {
		respondNotFound(w)
		return
	}
	AddLogField(r.Context(), "route", rule.Name)

	identity := ""
	if rule.RequiresAuth {
		raw, err := auth.ExtractBearer(r)
		if err == nil {
			identity, err = h.validator.Validate(raw)
		}
		if err != nil {
			h.logRefusal(r, rule, err)
			respondUnauthorized(w)
			return
		}
		AddLogField(r.Context(), "user_id", identity)
		r = r.WithContext(context.WithValue(r.Context(), identityKey{}, identity))
	}

	if err := h.dispatcher.Forward(w, r, rule, identity); err != nil {
		AddError(r.Context(), err)
		h.logger.Error("backend call failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("route", rule.Name),
			slog.String("error", err.Error()),
		)
		respondInternalError(w, err)
	}
}

func (h *GatewayHandler) logRefusal(r *http.Request, rule *route.Rule, err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, auth.ErrMalformed):
		reason = "malformed"
	case errors.Is(err, auth.ErrExpired):
		reason = "expired"
	}
	AddLogField(r.Context(), "auth_failure", reason)
	h.logger.Info("credential refused",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("route", rule.Name),
		slog.String("reason", reason),
	)
}
