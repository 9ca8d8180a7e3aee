// Package route holds the gateway's static route table: which path
// prefix maps to which backend, and how requests to it are treated.
package route

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/socialhub/edge-gateway/internal/config"
)

// Rule binds one path prefix to a backend and the per-route behavior
// the dispatcher applies. Rules are built once at startup and never
// mutated.
type Rule struct {
	// Name identifies the rule in logs and span attributes.
	Name string
	// Prefix is the gateway-facing path prefix, e.g. "/v1/posts".
	Prefix string
	// Backend is the base URL requests are forwarded to.
	Backend *url.URL
	// RequiresAuth gates the route behind bearer-token validation.
	RequiresAuth bool
	// BufferBody reads the request body into memory before
	// forwarding. Must be false for streamed/multipart uploads.
	BufferBody bool
	// PreserveMultipart keeps the inbound multipart content type
	// instead of forcing application/json.
	PreserveMultipart bool

	// RewriteFrom/RewriteTo swap the gateway path head for the
	// backend-facing one, e.g. /v1 -> /api.
	RewriteFrom string
	RewriteTo   string
}

// Rewrite maps a gateway path onto the backend path, preserving the
// remainder verbatim. The query string is carried separately by the
// dispatcher.
func (r *Rule) Rewrite(path string) string {
	if r.RewriteFrom == "" || !strings.HasPrefix(path, r.RewriteFrom) {
		return path
	}
	return r.RewriteTo + strings.TrimPrefix(path, r.RewriteFrom)
}

// Table resolves request paths to rules, longest prefix first.
type Table struct {
	rules []*Rule
}

func NewTable(rules ...*Rule) (*Table, error) {
	for _, r := range rules {
		if r.Prefix == "" || !strings.HasPrefix(r.Prefix, "/") {
			return nil, fmt.Errorf("route %q: prefix must start with /", r.Name)
		}
		if r.Backend == nil {
			return nil, fmt.Errorf("route %q: backend URL is required", r.Name)
		}
	}

	sorted := make([]*Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})

	return &Table{rules: sorted}, nil
}

// Rules returns the table's rules, longest prefix first.
func (t *Table) Rules() []*Rule {
	return t.rules
}

// Resolve returns the rule matching the request path, or nil when no
// configured prefix matches.
func (t *Table) Resolve(path string) *Rule {
	for _, r := range t.rules {
		if path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/") {
			return r
		}
	}
	return nil
}

// Default builds the gateway's route table from the configured
// backend URLs: /v1/auth is open, everything else requires a valid
// bearer token, and media streams bodies through untouched.
func Default(backends config.BackendsConfig) (*Table, error) {
	build := func(name, prefix, base string, requiresAuth, buffer, multipart bool) (*Rule, error) {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		return &Rule{
			Name:              name,
			Prefix:            prefix,
			Backend:           u,
			RequiresAuth:      requiresAuth,
			BufferBody:        buffer,
			PreserveMultipart: multipart,
			RewriteFrom:       "/v1",
			RewriteTo:         "/api",
		}, nil
	}

	defs := []struct {
		name, prefix, base      string
		auth, buffer, multipart bool
	}{
		{"auth", "/v1/auth", backends.Auth, false, true, false},
		{"posts", "/v1/posts", backends.Posts, true, true, false},
		{"media", "/v1/media", backends.Media, true, false, true},
		{"search", "/v1/search", backends.Search, true, true, false},
		{"profile", "/v1/profile", backends.Profile, true, true, false},
	}

	rules := make([]*Rule, 0, len(defs))
	for _, s := range defs {
		r, err := build(s.name, s.prefix, s.base, s.auth, s.buffer, s.multipart)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	return NewTable(rules...)
}
