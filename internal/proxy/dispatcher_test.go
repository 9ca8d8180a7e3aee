package proxy

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/socialhub/edge-gateway/internal/route"
)

func testDispatcher() *Dispatcher {
	return NewDispatcher(2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testRule(t *testing.T, backend string, mutate func(*route.Rule)) *route.Rule {
	t.Helper()
	u, err := url.Parse(backend)
	if err != nil {
		t.Fatalf("parsing backend URL: %v", err)
	}
	rule := &route.Rule{
		Name:         "posts",
		Prefix:       "/v1/posts",
		Backend:      u,
		RequiresAuth: true,
		BufferBody:   true,
		RewriteFrom:  "/v1",
		RewriteTo:    "/api",
	}
	if mutate != nil {
		mutate(rule)
	}
	return rule
}

func TestDispatcher_Forward_RewritesPathAndQuery(t *testing.T) {
	var gotPath, gotQuery string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	d := testDispatcher()
	rule := testRule(t, backend.URL, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/posts/42?x=1", nil)
	rec := httptest.NewRecorder()

	if err := d.Forward(rec, r, rule, "user-1"); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if gotPath != "/api/posts/42" {
		t.Errorf("backend path = %q, want %q", gotPath, "/api/posts/42")
	}
	if gotQuery != "x=1" {
		t.Errorf("backend query = %q, want %q", gotQuery, "x=1")
	}
}

func TestDispatcher_Forward_SetsIdentityHeader(t *testing.T) {
	var gotIdentity string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = r.Header.Get("X-User-ID")
	}))
	defer backend.Close()

	d := testDispatcher()
	rule := testRule(t, backend.URL, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/posts", nil)
	rec := httptest.NewRecorder()

	if err := d.Forward(rec, r, rule, "user-42"); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if gotIdentity != "user-42" {
		t.Errorf("identity header = %q, want %q", gotIdentity, "user-42")
	}
}

func TestDispatcher_Forward_NoIdentityHeaderWhenAnonymous(t *testing.T) {
	var hasIdentity bool
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasIdentity = r.Header["X-User-Id"]
	}))
	defer backend.Close()

	d := testDispatcher()
	rule := testRule(t, backend.URL, func(r *route.Rule) { r.RequiresAuth = false })

	r := httptest.NewRequest(http.MethodGet, "/v1/posts", nil)
	rec := httptest.NewRecorder()

	if err := d.Forward(rec, r, rule, ""); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if hasIdentity {
		t.Error("identity header set on anonymous request")
	}
}

func TestDispatcher_Forward_MultipartPassthrough(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("fake image bytes \x00\x01\x02")
	if _, err := fw.Write(payload); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	original := body.Bytes()

	var gotBody []byte
	var gotContentType string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
	}))
	defer backend.Close()

	d := testDispatcher()
	rule := testRule(t, backend.URL, func(r *route.Rule) {
		r.Name = "media"
		r.BufferBody = false
		r.PreserveMultipart = true
	})

	r := httptest.NewRequest(http.MethodPost, "/v1/media/upload", bytes.NewReader(original))
	r.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	if err := d.Forward(rec, r, rule, "user-1"); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if !bytes.Equal(gotBody, original) {
		t.Error("multipart body was not forwarded byte-identical")
	}
	if gotContentType != mw.FormDataContentType() {
		t.Errorf("content type = %q, want original multipart boundary %q",
			gotContentType, mw.FormDataContentType())
	}
}

func TestDispatcher_Forward_NonMultipartMediaForcedToJSON(t *testing.T) {
	var gotContentType string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
	}))
	defer backend.Close()

	d := testDispatcher()
	rule := testRule(t, backend.URL, func(r *route.Rule) {
		r.Name = "media"
		r.BufferBody = false
		r.PreserveMultipart = true
	})

	r := httptest.NewRequest(http.MethodPost, "/v1/media/meta", strings.NewReader(`{"caption":"hi"}`))
	r.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	if err := d.Forward(rec, r, rule, "user-1"); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q, want application/json", gotContentType)
	}
}

func TestDispatcher_Forward_RelaysResponseVerbatim(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend-Version", "7")
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, `{"error":"teapot"}`)
	}))
	defer backend.Close()

	d := testDispatcher()
	rule := testRule(t, backend.URL, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/posts", nil)
	rec := httptest.NewRecorder()

	if err := d.Forward(rec, r, rule, "user-1"); err != nil {
		t.Fatalf("Forward() error = %v, non-2xx must relay not fail", err)
	}

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if got := rec.Header().Get("X-Backend-Version"); got != "7" {
		t.Errorf("relayed header = %q, want %q", got, "7")
	}
	if rec.Body.String() != `{"error":"teapot"}` {
		t.Errorf("relayed body = %q", rec.Body.String())
	}
}

func TestDispatcher_Forward_TimeoutIsSingleFailure(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(500 * time.Millisecond)
	}))
	defer backend.Close()

	d := NewDispatcher(50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rule := testRule(t, backend.URL, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/posts", nil)
	rec := httptest.NewRecorder()

	if err := d.Forward(rec, r, rule, "user-1"); err == nil {
		t.Fatal("Forward() expected timeout error")
	}

	// Give a hypothetical retry time to fire before counting.
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want exactly 1 (no retry)", n)
	}
}

func TestDispatcher_Forward_UnreachableBackend(t *testing.T) {
	d := testDispatcher()
	// Port 1 is essentially guaranteed closed.
	rule := testRule(t, "http://127.0.0.1:1", nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/posts", nil)
	rec := httptest.NewRecorder()

	if err := d.Forward(rec, r, rule, "user-1"); err == nil {
		t.Fatal("Forward() expected transport error")
	}
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Error("Forward() wrote to the client despite failing; error boundary owns the response")
	}
}

func TestDispatcher_Forward_StripsHopByHopHeaders(t *testing.T) {
	var gotConnection string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConnection = r.Header.Get("Keep-Alive")
	}))
	defer backend.Close()

	d := testDispatcher()
	rule := testRule(t, backend.URL, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/posts", nil)
	r.Header.Set("Keep-Alive", "timeout=5")
	rec := httptest.NewRecorder()

	if err := d.Forward(rec, r, rule, "user-1"); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if gotConnection != "" {
		t.Errorf("hop-by-hop header forwarded: %q", gotConnection)
	}
}
