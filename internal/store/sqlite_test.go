package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the documents table applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "store-test-*.db")
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
		CREATE TABLE documents (
			path       TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			body       TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_documents_collection ON documents(collection);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying documents schema: %v", err)
	}

	return db
}

func TestStore_SetAndGetDocument(t *testing.T) {
	s := New(testDB(t))
	ctx := context.Background()

	doc := map[string]any{"email": "a@x.com", "role": "user"}
	if err := s.Set(ctx, "users/usr-1", doc); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := s.Get(ctx, "users/usr-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Get() returned %T, want map", got)
	}
	if m["email"] != "a@x.com" {
		t.Errorf("email = %v, want a@x.com", m["email"])
	}
}

func TestStore_GetAbsent(t *testing.T) {
	s := New(testDB(t))

	_, err := s.Get(context.Background(), "users/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStore_LeafWrite(t *testing.T) {
	s := New(testDB(t))
	ctx := context.Background()

	dev := map[string]any{
		"name":        "Hallway",
		"owner_email": "a@x.com",
		"data": map[string]any{
			"timestamp_seconds": 100,
			"relays":            []any{map[string]any{"id": 0, "state": false}},
		},
	}
	if err := s.Set(ctx, "devices/ESP32_A", dev); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := s.Set(ctx, "devices/ESP32_A/data/relays/0/state", true); err != nil {
		t.Fatalf("leaf Set() error = %v", err)
	}

	got, err := s.Get(ctx, "devices/ESP32_A/data/relays/0/state")
	if err != nil {
		t.Fatalf("leaf Get() error = %v", err)
	}
	if got != true {
		t.Errorf("leaf = %v, want true", got)
	}

	// Sibling fields must survive the leaf write.
	name, err := s.Get(ctx, "devices/ESP32_A/name")
	if err != nil || name != "Hallway" {
		t.Errorf("sibling field lost: %v / %v", name, err)
	}
}

func TestStore_CollectionGet(t *testing.T) {
	s := New(testDB(t))
	ctx := context.Background()

	for _, id := range []string{"ESP32_A", "ESP32_B"} {
		if err := s.Set(ctx, "devices/"+id, map[string]any{"name": id}); err != nil {
			t.Fatalf("Set(%s) error = %v", id, err)
		}
	}

	got, err := s.Get(ctx, "devices")
	if err != nil {
		t.Fatalf("Get(devices) error = %v", err)
	}

	snapshot, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Get(devices) returned %T, want map", got)
	}
	if len(snapshot) != 2 {
		t.Errorf("snapshot has %d entries, want 2", len(snapshot))
	}
	if _, ok := snapshot["ESP32_A"]; !ok {
		t.Error("snapshot missing ESP32_A")
	}
}

func TestStore_RemoveDocument(t *testing.T) {
	s := New(testDB(t))
	ctx := context.Background()

	if err := s.Set(ctx, "admins/usr-1", map[string]any{"email": "a@x.com"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := s.Remove(ctx, "admins/usr-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := s.Get(ctx, "admins/usr-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound after remove", err)
	}

	// Removing again is idempotent.
	if err := s.Remove(ctx, "admins/usr-1"); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
}

func TestStore_InvalidPaths(t *testing.T) {
	s := New(testDB(t))
	ctx := context.Background()

	if err := s.Set(ctx, "devices", map[string]any{}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Set(collection) error = %v, want ErrInvalidPath", err)
	}
	if err := s.Remove(ctx, "devices"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Remove(collection) error = %v, want ErrInvalidPath", err)
	}
	if _, err := s.Get(ctx, ""); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Get(empty) error = %v, want ErrInvalidPath", err)
	}
}

func TestWatch_InitialSnapshotAndUpdates(t *testing.T) {
	s := New(testDB(t))
	ctx := context.Background()

	if err := s.Set(ctx, "devices/ESP32_A", map[string]any{"name": "Hallway"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	sub, err := s.Watch("devices")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer sub.Close()

	// Initial snapshot is queued at subscribe time.
	ev := receiveEvent(t, sub)
	snapshot := ev.Value.(map[string]any)
	if len(snapshot) != 1 {
		t.Fatalf("initial snapshot has %d entries, want 1", len(snapshot))
	}

	// A mutation delivers a fresh full snapshot.
	if err := s.Set(ctx, "devices/ESP32_B", map[string]any{"name": "Garage"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ev = receiveEvent(t, sub)
	snapshot = ev.Value.(map[string]any)
	if len(snapshot) != 2 {
		t.Fatalf("updated snapshot has %d entries, want 2", len(snapshot))
	}
}

func TestWatch_LatestWins(t *testing.T) {
	s := New(testDB(t))
	ctx := context.Background()

	sub, err := s.Watch("devices")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer sub.Close()

	// Drain the initial snapshot.
	receiveEvent(t, sub)

	// Burst of writes without the consumer reading: only the newest
	// snapshot must remain pending.
	for i := 0; i < 5; i++ {
		if err := s.Set(ctx, "devices/ESP32_A", map[string]any{"rev": i}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	ev := receiveEvent(t, sub)
	snapshot := ev.Value.(map[string]any)
	doc := snapshot["ESP32_A"].(map[string]any)
	if doc["rev"] != 4.0 {
		t.Errorf("pending snapshot rev = %v, want 4 (latest)", doc["rev"])
	}
}

func TestWatch_ConcurrentWritesDuringSubscribe(t *testing.T) {
	s := New(testDB(t))
	ctx := context.Background()

	// Writes racing the subscription must never block Watch, and the
	// subscriber must converge on the final state.
	for i := 0; i < 25; i++ {
		writerDone := make(chan struct{})
		go func(rev int) {
			defer close(writerDone)
			for j := 0; j < 3; j++ {
				if err := s.Set(ctx, "devices/ESP32_A", map[string]any{"rev": rev*10 + j}); err != nil {
					t.Errorf("Set() error = %v", err)
					return
				}
			}
		}(i)

		sub, err := s.Watch("devices")
		if err != nil {
			t.Fatalf("Watch() error = %v", err)
		}
		<-writerDone

		final := float64(i*10 + 2)
		deadline := time.After(2 * time.Second)
		converged := false
		for !converged {
			select {
			case ev := <-sub.C:
				if ev.Err != nil {
					t.Fatalf("watch error = %v", ev.Err)
				}
				snapshot := ev.Value.(map[string]any)
				if doc, ok := snapshot["ESP32_A"].(map[string]any); ok && doc["rev"] == final {
					converged = true
				}
			case <-deadline:
				t.Fatalf("iteration %d: subscriber never saw rev %v", i, final)
			}
		}
		sub.Close()
	}
}

func TestWatch_OtherCollectionNotNotified(t *testing.T) {
	s := New(testDB(t))
	ctx := context.Background()

	sub, err := s.Watch("devices")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer sub.Close()

	receiveEvent(t, sub)

	if err := s.Set(ctx, "users/usr-1", map[string]any{"role": "user"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	select {
	case ev := <-sub.C:
		t.Errorf("unexpected event for unrelated collection: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscription_CloseIdempotent(t *testing.T) {
	s := New(testDB(t))

	sub, err := s.Watch("devices")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	sub.Close()
	sub.Close() // must not panic

	if _, ok := <-sub.C; ok {
		// initial snapshot may still be pending; drain and check closed
		if _, ok := <-sub.C; ok {
			t.Error("channel still open after Close()")
		}
	}
}

func TestStore_CloseRejectsNewWatches(t *testing.T) {
	s := New(testDB(t))
	s.Close()

	if _, err := s.Watch("devices"); !errors.Is(err, ErrClosed) {
		t.Errorf("Watch() after Close error = %v, want ErrClosed", err)
	}
}

func receiveEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		if ev.Err != nil {
			t.Fatalf("event error = %v", ev.Err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
