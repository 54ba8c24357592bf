package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

type stubValidator struct {
	principal *service.Principal
	err       error
	seen      string
}

func (v *stubValidator) ValidateAccessToken(_ context.Context, raw string) (*service.Principal, error) {
	v.seen = raw
	return v.principal, v.err
}

type stubResolver struct {
	perms []string
	err   error
}

func (r stubResolver) ResolveRole(context.Context, uint) (*service.RolePermissions, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &service.RolePermissions{RoleCode: domain.RoleCodeClinician, Permissions: r.perms}, nil
}

func TestAuthMiddlewareMissingTokenReturnsUnauthorized(t *testing.T) {
	h := RequestActor(AuthMiddleware(&stubValidator{}, stubResolver{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("expected middleware to block request")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", rr.Code)
	}
}

func TestAuthMiddlewareSessionExpiredKeepsCode(t *testing.T) {
	v := &stubValidator{err: apperr.SessionExpired()}
	h := RequestActor(AuthMiddleware(v, stubResolver{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("expected middleware to block request")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer revoked")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, apperr.CodeSessionExpired) {
		t.Fatalf("expected %s in body, got %s", apperr.CodeSessionExpired, body)
	}
}

func TestAuthMiddlewareEstablishesActor(t *testing.T) {
	v := &stubValidator{principal: &service.Principal{UserID: 42, RoleID: 3, SessionID: 7}}
	var got reqctx.Actor
	h := RequestActor(AuthMiddleware(v, stubResolver{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = reqctx.MustFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("User-Agent", "ua-test")
	req.AddCookie(&http.Cookie{Name: security.AccessTokenCookie, Value: "from-cookie"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if v.seen != "from-cookie" {
		t.Fatalf("expected cookie token to be validated, got %q", v.seen)
	}
	if got.UserID != 42 || got.RoleID != 3 || got.SessionID != 7 || got.RoleCode != domain.RoleCodeClinician {
		t.Fatalf("unexpected actor: %+v", got)
	}
	if got.IPAddress != "192.0.2.10" || got.UserAgent != "ua-test" {
		t.Fatalf("expected request metadata kept, got %+v", got)
	}
}

func TestAccessTokenFromRequestPrefersBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "bearer header-token")
	req.AddCookie(&http.Cookie{Name: security.AccessTokenCookie, Value: "cookie-token"})
	raw, source := AccessTokenFromRequest(req)
	if raw != "header-token" || source != "bearer" {
		t.Fatalf("got %q from %q", raw, source)
	}
}
