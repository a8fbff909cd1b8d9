package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/admin"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/audit"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/command"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/devcache"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/identity"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/config"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/logging"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/session"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
)

const testJWTSecret = "test-secret-0123456789abcdef0123456789abcdef"

// testEnv wires a full server over a temp SQLite database.
type testEnv struct {
	server   *Server
	router   http.Handler
	db       *sql.DB
	store    *store.SQLiteStore
	cache    *devcache.Cache
	identity *identity.Service
	sessions *session.Registry
}

// newTestEnv builds the server with real components: SQLite-backed store,
// identity repository, device cache, dispatcher, and admin service.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE documents (
			path       TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			body       TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_documents_collection ON documents(collection);

		CREATE TABLE audit_logs (
			id          TEXT PRIMARY KEY,
			action      TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT,
			actor_id    TEXT,
			details     TEXT,
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying schema: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	st := store.New(db)
	t.Cleanup(st.Close)

	verifier := identity.NewService(identity.NewRepository(db))
	sessions := session.NewRegistry(verifier, st, log)

	cache := devcache.New(st, nil)
	if err := cache.Subscribe(); err != nil {
		t.Fatalf("subscribing cache: %v", err)
	}
	t.Cleanup(cache.Unsubscribe)

	auditRepo := audit.NewSQLiteRepository(db)
	adminSvc := admin.NewService(verifier, st, auditRepo, log)
	dispatcher := command.NewDispatcher(cache, st, nil)

	srv, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1", Port: 8080},
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security:   config.SecurityConfig{JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15}},
		Logger:     log,
		Sessions:   sessions,
		Store:      st,
		Cache:      cache,
		Dispatcher: dispatcher,
		Admin:      adminSvc,
		Audit:      auditRepo,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	srv.hub = NewHub(srv.wsCfg, log)

	return &testEnv{
		server:   srv,
		router:   srv.buildRouter(),
		db:       db,
		store:    st,
		cache:    cache,
		identity: verifier,
		sessions: sessions,
	}
}

// seedUser creates an account plus its directory record; admins also get a
// registry entry.
func (e *testEnv) seedUser(t *testing.T, email, password, role string) *identity.Account {
	t.Helper()

	account, err := e.identity.CreateAccount(context.Background(), email, password)
	if err != nil {
		t.Fatalf("creating account %s: %v", email, err)
	}
	record := map[string]any{"email": account.Email, "role": role}
	if err := e.store.Set(context.Background(), "users/"+account.ID, record); err != nil {
		t.Fatalf("writing directory record: %v", err)
	}
	if role == "admin" {
		if err := e.store.Set(context.Background(), "admins/"+account.ID, map[string]any{"email": account.Email}); err != nil {
			t.Fatalf("writing admin registry: %v", err)
		}
	}
	return account
}

// seedDevice writes a device document with one relay and a PWM block.
func (e *testEnv) seedDevice(t *testing.T, id, ownerEmail string, relayState bool) {
	t.Helper()

	err := e.store.Set(context.Background(), "devices/"+id, map[string]any{
		"name":        "Device " + id,
		"location":    "Hallway",
		"owner_email": ownerEmail,
		"data": map[string]any{
			"timestamp_seconds": time.Now().Unix(),
			"relays":            []any{map[string]any{"id": 0, "state": relayState}},
			"pwm":               map[string]any{"brightness": 40, "active_relay": 0},
		},
	})
	if err != nil {
		t.Fatalf("seeding device %s: %v", id, err)
	}
	e.waitForDevice(t, id)
}

// waitForDevice polls until the async cache has picked up the device.
func (e *testEnv) waitForDevice(t *testing.T, id string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.cache.Get(id) != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("cache never picked up device %s", id)
}

// login signs the email/password in over HTTP and returns the access token.
func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()

	rec := e.request(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": email, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	decodeBody(t, rec, &resp)
	return resp.AccessToken
}

// request performs a request against the router, optionally with a bearer
// token and a JSON body.
func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}
