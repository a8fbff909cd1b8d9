package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger is the logging interface used by the store.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SQLiteStore implements Store over the documents table.
//
// Leaf writes are read-modify-write of the owning document inside one
// transaction, so a single Set is atomic with respect to other writers on
// the same connection. There is no cross-document atomicity.
type SQLiteStore struct {
	db     *sql.DB
	hub    *watchHub
	logger Logger

	mu     sync.Mutex
	closed bool
}

// New creates a SQLite-backed realtime store on the given connection.
// The documents table must already exist (applied by migrations).
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		hub:    newWatchHub(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *SQLiteStore) SetLogger(logger Logger) {
	s.logger = logger
}

// Get returns the decoded JSON value at path.
func (s *SQLiteStore) Get(ctx context.Context, path string) (any, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	if len(segments) == 1 {
		return s.collectionSnapshot(ctx, segments[0])
	}

	doc, err := s.getDocument(ctx, s.db, segments[0]+"/"+segments[1])
	if err != nil {
		return nil, err
	}

	if len(segments) == 2 {
		return doc, nil
	}
	return getLeaf(doc, segments[2:])
}

// Set writes value at path and notifies watchers of the collection.
func (s *SQLiteStore) Set(ctx context.Context, path string, value any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments) < 2 {
		return fmt.Errorf("%w: cannot replace a whole collection", ErrInvalidPath)
	}

	collection := segments[0]
	docPath := collection + "/" + segments[1]

	if len(segments) == 2 {
		if err := s.writeDocument(ctx, docPath, collection, value); err != nil {
			return err
		}
		s.notify(collection)
		return nil
	}

	// Leaf write: read-modify-write the owning document in one transaction.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning leaf write: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	doc, err := s.getDocument(ctx, tx, docPath)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	updated, err := setLeaf(doc, segments[2:], value)
	if err != nil {
		return err
	}

	if err := s.writeDocumentTx(ctx, tx, docPath, collection, updated); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing leaf write: %w", err)
	}

	s.notify(collection)
	return nil
}

// Remove deletes the document or leaf at path. Idempotent.
func (s *SQLiteStore) Remove(ctx context.Context, path string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments) < 2 {
		return fmt.Errorf("%w: cannot remove a whole collection", ErrInvalidPath)
	}

	collection := segments[0]
	docPath := collection + "/" + segments[1]

	if len(segments) == 2 {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", docPath); err != nil {
			return fmt.Errorf("removing document: %w", err)
		}
		s.notify(collection)
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning leaf remove: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	doc, err := s.getDocument(ctx, tx, docPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil // removing an absent leaf is a no-op
		}
		return err
	}

	updated := removeLeaf(doc, segments[2:])
	if err := s.writeDocumentTx(ctx, tx, docPath, collection, updated); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing leaf remove: %w", err)
	}

	s.notify(collection)
	return nil
}

// Watch subscribes to a collection. The current snapshot is delivered
// immediately; a fresh snapshot follows every mutation in the collection.
func (s *SQLiteStore) Watch(collection string) (*Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	if _, err := splitPath(collection); err != nil {
		return nil, err
	}

	sub := s.hub.subscribe(collection)

	// Deliver the initial snapshot so subscribers start from current state.
	snapshot, err := s.collectionSnapshot(context.Background(), collection)
	if err != nil {
		sub.Close()
		return nil, err
	}
	s.hub.offerInitial(sub, Event{Value: snapshot})

	return sub, nil
}

// Close releases all active subscriptions. The underlying database
// connection is owned by the caller and is not closed here.
func (s *SQLiteStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.hub.closeAll()
}

// querier abstracts *sql.DB and *sql.Tx for document reads.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getDocument reads and decodes a single document body.
func (s *SQLiteStore) getDocument(ctx context.Context, q querier, docPath string) (any, error) {
	var body string
	err := q.QueryRowContext(ctx, "SELECT body FROM documents WHERE path = ?", docPath).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading document: %w", err)
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", docPath, err)
	}
	return doc, nil
}

// writeDocument upserts a document outside a transaction.
func (s *SQLiteStore) writeDocument(ctx context.Context, docPath, collection string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", docPath, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (path, collection, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		docPath, collection, string(body), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

// writeDocumentTx upserts a document within a transaction.
func (s *SQLiteStore) writeDocumentTx(ctx context.Context, tx *sql.Tx, docPath, collection string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", docPath, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (path, collection, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		docPath, collection, string(body), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

// collectionSnapshot builds the full map of id to document for a collection.
func (s *SQLiteStore) collectionSnapshot(ctx context.Context, collection string) (any, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, body FROM documents WHERE collection = ? ORDER BY path", collection)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}
	defer rows.Close()

	snapshot := make(map[string]any)
	prefix := collection + "/"

	for rows.Next() {
		var path, body string
		if err := rows.Scan(&path, &body); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		var doc any
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			s.logger.Warn("skipping undecodable document", "path", path, "error", err)
			continue
		}
		snapshot[path[len(prefix):]] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection %s: %w", collection, err)
	}

	return snapshot, nil
}

// notify publishes a fresh collection snapshot to all watchers.
// Snapshot build failures are delivered as error events; subscribers keep
// their previous snapshot.
func (s *SQLiteStore) notify(collection string) {
	snapshot, err := s.collectionSnapshot(context.Background(), collection)
	if err != nil {
		s.logger.Error("building watch snapshot failed", "collection", collection, "error", err)
		s.hub.publish(collection, Event{Err: err})
		return
	}
	s.hub.publish(collection, Event{Value: snapshot})
}
