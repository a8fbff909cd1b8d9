package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the path (or a leaf along it) does not exist.
	ErrNotFound = errors.New("path not found")

	// ErrInvalidPath indicates a malformed or unsupported path.
	ErrInvalidPath = errors.New("invalid path")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// Store is the keyed realtime store contract the core components depend on.
//
// Paths address documents in a flat keyspace ("users/usr-1a2b3c4d") or
// leaves within a document's JSON body
// ("devices/ESP32_A/data/relays/0/state"). Numeric segments index arrays.
type Store interface {
	// Get returns the decoded JSON value at path.
	// Returns ErrNotFound if the document or leaf is absent.
	Get(ctx context.Context, path string) (any, error)

	// Set writes value at path. A two-segment path replaces the whole
	// document (creating it if absent); a deeper path writes a single leaf
	// inside the document, creating intermediate objects as needed.
	Set(ctx context.Context, path string, value any) error

	// Remove deletes the document or leaf at path. Removing an absent path
	// is not an error; the operation is idempotent.
	Remove(ctx context.Context, path string) error

	// Watch subscribes to a collection. The subscription immediately
	// delivers the current collection snapshot, then a fresh full snapshot
	// after every mutation within the collection. The caller must Close the
	// subscription when done.
	Watch(collection string) (*Subscription, error)
}

// splitPath validates and splits a store path into segments.
// A valid path has at least one non-empty segment and no empty segments.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}
