// Package proxy forwards admitted requests to their resolved backend
// and relays the response unchanged.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/socialhub/edge-gateway/internal/route"
)

// identityHeader carries the authenticated user id to backends so
// they trust the gateway's authentication decision instead of
// re-validating tokens.
const identityHeader = "X-User-ID"

// Hop-by-hop headers are meaningful only for the inbound connection
// and must not be forwarded (RFC 9110 section 7.6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Dispatcher performs the single outbound call for each admitted
// request. It holds one shared client so connections are pooled
// across requests; the client timeout bounds every backend call.
type Dispatcher struct {
	client *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

func NewDispatcher(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: &http.Client{
			Transport: NewTransport(),
			Timeout:   timeout,
		},
		logger: logger,
		tracer: otel.Tracer("edge-gateway/proxy"),
	}
}

// Forward builds the outbound request for the matched rule, sends it,
// and relays the backend response verbatim. identity is the
// authenticated user id, empty on unauthenticated routes. A non-nil
// error means nothing was written to w and the caller must emit the
// error-boundary response; backend failures are never retried.
func (d *Dispatcher) Forward(w http.ResponseWriter, r *http.Request, rule *route.Rule, identity string) error {
	ctx, span := d.tracer.Start(r.Context(), "proxy.forward",
		trace.WithAttributes(
			attribute.String("route.name", rule.Name),
			attribute.String("http.method", r.Method),
		))
	defer span.End()

	outURL := *rule.Backend
	outURL.Path = joinPath(rule.Backend.Path, rule.Rewrite(r.URL.Path))
	outURL.RawQuery = r.URL.RawQuery

	body := r.Body
	contentLength := r.ContentLength
	if rule.BufferBody && r.Body != nil {
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("reading request body: %w", err)
		}
		body = io.NopCloser(bytes.NewReader(buf))
		contentLength = int64(len(buf))
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, outURL.String(), body)
	if err != nil {
		return fmt.Errorf("building backend request: %w", err)
	}
	out.ContentLength = contentLength

	copyHeaders(out.Header, r.Header)
	decorate(out, r, rule, identity)

	start := time.Now()
	resp, err := d.client.Do(out)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("backend %s: %w", rule.Name, err)
	}
	defer resp.Body.Close()

	// Response hook: record the exchange for observability before relaying.
	span.SetAttributes(attribute.Int("backend.status", resp.StatusCode))
	d.logger.Debug("backend responded",
		slog.String("route", rule.Name),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	relay(w, resp)
	return nil
}

func joinPath(base, path string) string {
	if base == "" || base == "/" {
		return path
	}
	return strings.TrimSuffix(base, "/") + path
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
}

// decorate applies the rule's request transforms: the forwarded-for
// chain, the JSON content type (unless the rule preserves an inbound
// multipart form), and the trusted identity header.
func decorate(out *http.Request, in *http.Request, rule *route.Rule, identity string) {
	if host, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
		out.Header.Set("X-Forwarded-For", host)
	}

	inboundType := in.Header.Get("Content-Type")
	multipart := strings.HasPrefix(inboundType, "multipart/form-data")
	if !(rule.PreserveMultipart && multipart) {
		out.Header.Set("Content-Type", "application/json")
	}

	if identity != "" {
		out.Header.Set(identityHeader, identity)
	}
}

func relay(w http.ResponseWriter, resp *http.Response) {
	header := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	for _, h := range hopByHopHeaders {
		header.Del(h)
	}

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body) //nolint:errcheck // client may disconnect mid-relay
}
