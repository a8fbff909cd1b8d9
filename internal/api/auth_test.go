package api

import (
	"context"
	"net/http"
	"testing"
)

func TestHealthNoAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health body = %v", resp)
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@example.com", "correct-horse", "user")

	token := env.login(t, "ana@example.com", "correct-horse")

	rec := env.request(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var me map[string]any
	decodeBody(t, rec, &me)
	if me["email"] != "ana@example.com" || me["role"] != "user" {
		t.Errorf("me = %v", me)
	}
}

func TestRoleResolvedFreshPerRequest(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedUser(t, "ana@example.com", "correct-horse", "user")
	token := env.login(t, "ana@example.com", "correct-horse")

	// Promote by writing the admin registry entry directly; the existing
	// token must pick the new role up on the next request.
	if err := env.store.Set(context.Background(), "admins/"+account.ID, map[string]any{"email": account.Email}); err != nil {
		t.Fatalf("promoting: %v", err)
	}

	rec := env.request(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	var me map[string]any
	decodeBody(t, rec, &me)
	if me["role"] != "admin" {
		t.Errorf("role after promotion = %v, want admin", me["role"])
	}

	// Demote again: registry entry removed, directory says user.
	if err := env.store.Remove(context.Background(), "admins/"+account.ID); err != nil {
		t.Fatalf("demoting: %v", err)
	}
	rec = env.request(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	decodeBody(t, rec, &me)
	if me["role"] != "user" {
		t.Errorf("role after demotion = %v, want user", me["role"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@example.com", "correct-horse", "user")

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong password", map[string]string{"email": "ana@example.com", "password": "nope"}, http.StatusUnauthorized},
		{"unknown account", map[string]string{"email": "ghost@example.com", "password": "whatever"}, http.StatusUnauthorized},
		{"malformed email", map[string]string{"email": "not-an-email", "password": "whatever"}, http.StatusUnauthorized},
		{"missing fields", map[string]string{"email": "ana@example.com"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, http.MethodPost, "/api/v1/auth/login", "", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/v1/devices", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/v1/devices", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedUser(t, "ana@example.com", "correct-horse", "user")
	token := env.login(t, "ana@example.com", "correct-horse")

	rec := env.request(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}

	if p := env.sessions.Principal(account.ID); p != nil {
		t.Errorf("session principal after logout = %+v, want nil", p)
	}
}

func TestWSTicketIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedUser(t, "ana@example.com", "correct-horse", "user")
	token := env.login(t, "ana@example.com", "correct-horse")

	rec := env.request(t, http.MethodPost, "/api/v1/auth/ws-ticket", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ws-ticket status = %d", rec.Code)
	}

	var resp map[string]any
	decodeBody(t, rec, &resp)
	ticket, _ := resp["ticket"].(string)
	if ticket == "" {
		t.Fatal("empty ticket")
	}

	principal, ok := env.server.validateTicket(context.Background(), ticket)
	if !ok {
		t.Fatal("first redemption failed")
	}
	if principal.ID != account.ID || principal.Email != account.Email {
		t.Errorf("ticket principal = %+v", principal)
	}

	if _, ok := env.server.validateTicket(context.Background(), ticket); ok {
		t.Error("second redemption succeeded, tickets must be single-use")
	}
}

func TestWSTicketRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
