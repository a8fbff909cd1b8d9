package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for account persistence.
type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed account repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new account. The ID is generated if empty.
// Emails are stored lowercased so lookups are case-insensitive.
func (r *SQLiteRepository) Create(ctx context.Context, account *Account) error {
	if !IsValidEmail(account.Email) {
		return ErrEmailInvalid
	}
	if account.ID == "" {
		account.ID = "usr-" + uuid.NewString()[:8]
	}
	account.Email = strings.ToLower(account.Email)

	now := time.Now().UTC().Format(time.RFC3339)
	account.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		account.ID, account.Email, account.PasswordHash, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its unique ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	return r.getAccount(ctx, "SELECT id, email, password_hash, created_at FROM accounts WHERE id = ?", id)
}

// GetByEmail retrieves an account by email. Lookup is case-insensitive.
func (r *SQLiteRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.getAccount(ctx, "SELECT id, email, password_hash, created_at FROM accounts WHERE email = ?", strings.ToLower(email))
}

// List returns all accounts ordered by creation date.
func (r *SQLiteRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, email, password_hash, created_at FROM accounts ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccountFrom(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}

	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}

// UpdatePassword changes an account's password hash.
func (r *SQLiteRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ? WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Count returns the total number of accounts.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

// getAccount executes a query and scans a single account result.
func (r *SQLiteRepository) getAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	return scanAccountFrom(row)
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccountFrom(s scanner) (*Account, error) {
	var a Account
	var createdAt string

	err := s.Scan(&a.ID, &a.Email, &a.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &a, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
