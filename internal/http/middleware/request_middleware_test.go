package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
)

func TestRequestIDReusesInboundHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = chimiddleware.GetReqID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" || rr.Header().Get("X-Request-Id") != "abc-123" {
		t.Fatalf("expected inbound id reused, got ctx=%q header=%q", seen, rr.Header().Get("X-Request-Id"))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc-123" {
		t.Fatalf("expected fresh id, got %q", seen)
	}
}

func TestRequestActorIsAnonymousSystemActor(t *testing.T) {
	var actor reqctx.Actor
	h := RequestActor(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		actor = reqctx.MustFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if actor.UserID != domain.SystemUserID || !actor.IsAnonymous() || actor.IPAddress != "2001:db8::1" {
		t.Fatalf("unexpected anonymous actor: %+v", actor)
	}
}

func TestStructuredRequestLoggerRecordsStatusAndActor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := StructuredRequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reportActor(r.Context(), 77)
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["status"] != float64(http.StatusTeapot) || line["actor_user_id"] != float64(77) || line["path"] != "/api/v1/patients" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestCORSAllowsConfiguredOriginOnly(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("expected preflight accepted, got %d %v", rr.Code, rr.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no CORS headers for unknown origin")
	}
}

func TestSecurityHeadersAndBodyLimit(t *testing.T) {
	var readErr error
	h := SecurityHeaders(BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	for name, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rr.Header().Get(name); got != want {
			t.Fatalf("%s = %q, want %q", name, got, want)
		}
	}
	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Fatalf("expected MaxBytesError, got %v", readErr)
	}
}

func TestRequestActorTruncatesUserAgentOnRuneBoundary(t *testing.T) {
	var actor reqctx.Actor
	h := RequestActor(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		actor = reqctx.MustFrom(r.Context())
	}))

	// 511 ASCII bytes followed by a three-byte rune straddle the limit.
	ua := strings.Repeat("a", maxUserAgentBytes-1) + "€€"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", ua)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(actor.UserAgent) > maxUserAgentBytes || !utf8.ValidString(actor.UserAgent) {
		t.Fatalf("expected valid UTF-8 within %d bytes, got %d bytes valid=%v",
			maxUserAgentBytes, len(actor.UserAgent), utf8.ValidString(actor.UserAgent))
	}
	if actor.UserAgent != strings.Repeat("a", maxUserAgentBytes-1) {
		t.Fatalf("expected cut before the split rune, got %d bytes", len(actor.UserAgent))
	}

	for _, tc := range []struct{ in, want string }{
		{"abcd", "abcd"},
		{"ab€", "ab"},
		{"abc€", "abc"},
	} {
		if got := truncateUTF8(tc.in, 4); got != tc.want {
			t.Fatalf("truncateUTF8(%q, 4) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
