package api

import (
	"net/http"
	"testing"

	"github.com/cashi/auth-core/internal/auth"
	"github.com/cashi/auth-core/internal/sessionconfig"
)

func TestSessionConfig_Read(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "alice").AccessToken

	rec := env.do(t, http.MethodGet, "/api/v1/config/session", token, nil)
	assertStatus(t, rec, http.StatusOK)
	all := decode[map[string]int](t, rec)
	if all[sessionconfig.KeyAccessTokenExpiration] != 3600 || all[sessionconfig.KeyInactivityTimeout] != 900 {
		t.Errorf("settings = %v", all)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/config/session/"+sessionconfig.KeyRefreshTokenExpiration, token, nil)
	assertStatus(t, rec, http.StatusOK)
	if v := decode[sessionConfigValue](t, rec); v.Value != 604800 {
		t.Errorf("value = %d, want 604800", v.Value)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/config/session/NOT_A_KEY", token, nil)
	assertErrorCode(t, rec, http.StatusNotFound, ErrCodeNotFound)

	rec = env.do(t, http.MethodGet, "/api/v1/config/session?detail=true", token, nil)
	assertStatus(t, rec, http.StatusOK)
	detail := decode[struct {
		Settings []sessionconfig.Entry `json:"settings"`
	}](t, rec)
	if len(detail.Settings) != len(sessionconfig.Keys()) || detail.Settings[0].Description == "" {
		t.Errorf("detail = %+v", detail.Settings)
	}
}

func TestSessionConfig_Update(t *testing.T) {
	env := newTestEnv(t)
	agent := env.register(t, "alice").AccessToken
	admin := env.register(t, "root", auth.RoleAdmin).AccessToken
	path := "/api/v1/config/session/" + sessionconfig.KeyAccessTokenExpiration

	rec := env.do(t, http.MethodPut, path, agent, map[string]int{"value": 7200})
	assertErrorCode(t, rec, http.StatusForbidden, ErrCodeForbidden)

	rec = env.do(t, http.MethodPut, path, admin, map[string]int{"value": 7200})
	assertStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodGet, path, agent, nil)
	assertStatus(t, rec, http.StatusOK)
	if v := decode[sessionConfigValue](t, rec); v.Value != 7200 {
		t.Errorf("value after update = %d, want 7200", v.Value)
	}

	// New tokens pick up the lifetime immediately.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": testPassword})
	assertStatus(t, rec, http.StatusOK)
	if b := decode[auth.Bundle](t, rec); b.ExpiresIn != 7200 {
		t.Errorf("ExpiresIn = %d, want 7200", b.ExpiresIn)
	}
}

func TestSessionConfig_UpdateRejections(t *testing.T) {
	env := newTestEnv(t)
	admin := env.register(t, "root", auth.RoleAdmin).AccessToken

	tests := []struct {
		name   string
		key    string
		body   any
		status int
		code   string
	}{
		{"unknown key", "SESSION_COLOUR", map[string]int{"value": 1}, http.StatusBadRequest, ErrCodeValidation},
		{"missing value", sessionconfig.KeyInactivityTimeout, map[string]int{}, http.StatusBadRequest, ErrCodeBadRequest},
		{"negative value", sessionconfig.KeyInactivityTimeout, map[string]int{"value": -1}, http.StatusBadRequest, ErrCodeBadRequest},
		{"malformed", sessionconfig.KeyInactivityTimeout, "[", http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, "/api/v1/config/session/"+tt.key, admin, tt.body)
			assertErrorCode(t, rec, tt.status, tt.code)
		})
	}
}

func TestSessionConfig_Initialize(t *testing.T) {
	env := newTestEnv(t)
	agent := env.register(t, "alice").AccessToken
	admin := env.register(t, "root", auth.RoleAdmin).AccessToken

	rec := env.do(t, http.MethodPost, "/api/v1/config/session/initialize", agent, nil)
	assertErrorCode(t, rec, http.StatusForbidden, ErrCodeForbidden)

	rec = env.do(t, http.MethodPost, "/api/v1/config/session/initialize", admin, nil)
	assertStatus(t, rec, http.StatusOK)

	var rows int
	if err := env.db.QueryRowContext(t.Context(), `SELECT COUNT(*) FROM session_config`).Scan(&rows); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if rows != len(sessionconfig.Keys()) {
		t.Errorf("rows = %d, want %d", rows, len(sessionconfig.Keys()))
	}
}
