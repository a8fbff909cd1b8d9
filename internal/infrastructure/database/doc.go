// Package database manages the SQLite connection for the dashboard core.
//
// It provides:
//   - Connection lifecycle (open, configure, close)
//   - WAL mode and busy-timeout pragmas for concurrent access
//   - Versioned schema migrations embedded in the binary
//
// SQLite is opened with a single writer connection; the store, identity and
// audit repositories share it. Migrations are registered by the top-level
// migrations package via its init function.
package database
