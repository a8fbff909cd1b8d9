package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
)

// Seed constants.
const (
	// SeedAdminEmail is the address of the first-boot admin account.
	SeedAdminEmail = "admin@esp32dash.local"

	// seedPasswordBytes is the number of random bytes for the seed password.
	seedPasswordBytes = 16
)

// SeedAdmin creates the initial admin account on first boot if no accounts
// exist: the credential record, its directory entry under users/{id}, and
// the admins/{id} registry entry that grants the admin role.
//
// The generated password is returned so the caller can log it; it must be
// changed immediately. Returns an empty string if seeding was skipped.
func SeedAdmin(ctx context.Context, svc *Service, st store.Store) (string, error) {
	count, err := svc.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking account count: %w", err)
	}
	if count > 0 {
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	account, err := svc.CreateAccount(ctx, SeedAdminEmail, password)
	if err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	// Registry before directory: if interrupted in between, the account
	// still resolves as admin and the directory entry is repaired by the
	// first role update.
	if err := st.Set(ctx, "admins/"+account.ID, map[string]any{"email": account.Email}); err != nil {
		return "", fmt.Errorf("writing seed admin registry: %w", err)
	}
	if err := st.Set(ctx, "users/"+account.ID, map[string]any{
		"email": account.Email,
		"role":  "admin",
	}); err != nil {
		return "", fmt.Errorf("writing seed admin directory: %w", err)
	}

	return password, nil
}
