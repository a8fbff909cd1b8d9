package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	account := &Account{Email: "jack@example.com", PasswordHash: "$argon2id$fake"}
	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if account.ID == "" {
		t.Fatal("Create() should generate an ID")
	}
	if !strings.HasPrefix(account.ID, "usr-") {
		t.Errorf("ID should have usr- prefix, got %q", account.ID)
	}
	if account.CreatedAt.IsZero() {
		t.Error("Create() should set CreatedAt")
	}

	got, err := repo.GetByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != "jack@example.com" {
		t.Errorf("Email = %q, want jack@example.com", got.Email)
	}
}

func TestRepository_GetByEmail_CaseInsensitive(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	seedTestAccount(t, db, "Emma@Example.com", "some-password")

	got, err := repo.GetByEmail(context.Background(), "emma@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.Email != "emma@example.com" {
		t.Errorf("stored email should be lowercased, got %q", got.Email)
	}

	if _, err := repo.GetByEmail(context.Background(), "EMMA@EXAMPLE.COM"); err != nil {
		t.Errorf("GetByEmail() with uppercase input error = %v", err)
	}
}

func TestRepository_Create_DuplicateEmail(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	seedTestAccount(t, db, "jack@example.com", "some-password")

	err := repo.Create(context.Background(), &Account{Email: "jack@example.com", PasswordHash: "hash"})
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("Create() duplicate error = %v, want ErrEmailExists", err)
	}
}

func TestRepository_Create_InvalidEmail(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	err := repo.Create(context.Background(), &Account{Email: "not-an-email", PasswordHash: "hash"})
	if !errors.Is(err, ErrEmailInvalid) {
		t.Errorf("Create() error = %v, want ErrEmailInvalid", err)
	}
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	_, err := repo.GetByID(context.Background(), "usr-missing")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("GetByID() error = %v, want ErrAccountNotFound", err)
	}
}

func TestRepository_List(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	accounts, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("List() on empty db = %d accounts, want 0", len(accounts))
	}

	seedTestAccount(t, db, "a@example.com", "some-password")
	seedTestAccount(t, db, "b@example.com", "some-password")

	accounts, err = repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("List() = %d accounts, want 2", len(accounts))
	}
}

func TestRepository_UpdatePassword(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	account := seedTestAccount(t, db, "jack@example.com", "old-password")

	if err := repo.UpdatePassword(context.Background(), account.ID, "$argon2id$new"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.PasswordHash != "$argon2id$new" {
		t.Error("UpdatePassword() should replace the stored hash")
	}

	err = repo.UpdatePassword(context.Background(), "usr-missing", "hash")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("UpdatePassword() on missing account error = %v, want ErrAccountNotFound", err)
	}
}

func TestRepository_Count(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	count, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}

	seedTestAccount(t, db, "jack@example.com", "some-password")

	count, err = repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}
