package integration

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
)

type sessionView struct {
	ID        uint   `json:"id"`
	IsCurrent bool   `json:"is_current"`
	UserAgent string `json:"user_agent"`
}

func TestSessionManagementListAndRevokeByDevice(t *testing.T) {
	e := newTestEnv(t)
	clin := e.createUser(t, "session-mgmt@example.com", domain.RoleCodeClinician)
	e.createUser(t, "session-admin@example.com", domain.RoleCodeAdmin)

	laptop, phone, adminClient := newClient(t), newClient(t), newClient(t)
	laptopTokens := e.login(t, laptop, clin.Email, "laptop-browser")
	phoneTokens := e.login(t, phone, clin.Email, "phone-browser")
	adminTokens := e.login(t, adminClient, "session-admin@example.com", "admin-console")

	resp, env := doJSON(t, laptop, http.MethodGet, e.baseURL+"/api/v1/sessions", nil, bearer(laptopTokens.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list own sessions: status=%d", resp.StatusCode)
	}
	var own []sessionView
	if err := json.Unmarshal(env.Data, &own); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(own))
	}
	var phoneSessionID uint
	current := 0
	for _, s := range own {
		if s.IsCurrent {
			current++
			if s.UserAgent != "laptop-browser" {
				t.Fatalf("current session should be the laptop, got %q", s.UserAgent)
			}
		}
		if s.UserAgent == "phone-browser" {
			phoneSessionID = s.ID
		}
	}
	if current != 1 || phoneSessionID == 0 {
		t.Fatalf("expected exactly one current session and a phone session, got %+v", own)
	}

	// Clinicians cannot revoke sessions, even their own.
	resp, env = doJSON(t, laptop, http.MethodDelete, e.baseURL+"/api/v1/sessions/"+strconv.FormatUint(uint64(phoneSessionID), 10), nil, bearer(laptopTokens.AccessToken))
	if resp.StatusCode != http.StatusForbidden || errorCode(env) != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN for clinician revoke, got %d %q", resp.StatusCode, errorCode(env))
	}

	resp, _ = doJSON(t, adminClient, http.MethodDelete, e.baseURL+"/api/v1/sessions/"+strconv.FormatUint(uint64(phoneSessionID), 10), nil, bearer(adminTokens.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin revoke: status=%d", resp.StatusCode)
	}

	resp, env = doJSON(t, phone, http.MethodGet, e.baseURL+"/api/v1/me", nil, bearer(phoneTokens.AccessToken))
	if resp.StatusCode != http.StatusUnauthorized || errorCode(env) != "SESSION_EXPIRED" {
		t.Fatalf("revoked access token: expected SESSION_EXPIRED, got %d %q", resp.StatusCode, errorCode(env))
	}
	// The phone's jar still carries the refresh cookie of the revoked session.
	resp, env = doJSON(t, phone, http.MethodPost, e.baseURL+"/api/v1/auth/refresh", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized || errorCode(env) != "SESSION_EXPIRED" {
		t.Fatalf("revoked refresh: expected SESSION_EXPIRED, got %d %q", resp.StatusCode, errorCode(env))
	}

	resp, _ = doJSON(t, laptop, http.MethodGet, e.baseURL+"/api/v1/me", nil, bearer(laptopTokens.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("laptop session should survive, got %d", resp.StatusCode)
	}

	userPath := e.baseURL + "/api/v1/users/" + strconv.FormatUint(uint64(clin.ID), 10)
	resp, env = doJSON(t, adminClient, http.MethodPost, userPath+"/sessions/revoke-all", nil, bearer(adminTokens.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke-all: status=%d", resp.StatusCode)
	}
	var revoked struct {
		Revoked int64 `json:"revoked"`
	}
	if err := json.Unmarshal(env.Data, &revoked); err != nil {
		t.Fatalf("decode revoke-all: %v", err)
	}
	if revoked.Revoked != 1 {
		t.Fatalf("expected 1 remaining session revoked, got %d", revoked.Revoked)
	}
	resp, _ = doJSON(t, laptop, http.MethodGet, e.baseURL+"/api/v1/me", nil, bearer(laptopTokens.AccessToken))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected laptop session to be revoked, got %d", resp.StatusCode)
	}

	var audits int64
	e.db.Model(&domain.AuditLog{}).Where("action = ?", domain.AuditActionRevokeSession).Count(&audits)
	if audits != 2 {
		t.Fatalf("expected 2 REVOKE_SESSION audit rows, got %d", audits)
	}
}
