// Package admin manages the user directory and the admin registry.
//
// The directory (users/{id}) and registry (admins/{id}) live in the realtime
// store. The registry write order is deliberate: demotion removes the
// registry entry before downgrading the directory role, promotion writes the
// directory role before adding the registry entry. A crash between the two
// writes then always leaves the target with less access, never more.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/audit"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/identity"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/session"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
)

var (
	// ErrUnauthorized means the caller is not an admin.
	ErrUnauthorized = errors.New("admin role required")

	// ErrInvalidRole means the requested role is not user or admin.
	ErrInvalidRole = errors.New("invalid role")

	// ErrUserNotFound means the target has no directory record.
	ErrUserNotFound = errors.New("user not found")

	// ErrLastAdmin means the operation would leave the system without any admin.
	ErrLastAdmin = errors.New("cannot remove the last admin")
)

// AccountCreator creates identity-service accounts.
type AccountCreator interface {
	CreateAccount(ctx context.Context, email, password string) (*identity.Account, error)
}

// UserRecord is a directory entry under users/{id}.
type UserRecord struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Created   string `json:"created"`
	CreatedBy string `json:"created_by,omitempty"`
}

// Service performs admin-gated user management.
type Service struct {
	accounts AccountCreator
	store    store.Store
	audit    audit.Repository
	logger   Logger
	now      func() time.Time
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// NewService creates the admin service. The audit repository may be nil;
// audit failures are logged, never surfaced to the caller.
func NewService(accounts AccountCreator, st store.Store, auditRepo audit.Repository, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		accounts: accounts,
		store:    st,
		audit:    auditRepo,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateUser creates an identity account plus its directory record, and for
// admins a registry entry. If the account is created but a store write
// fails, the error is surfaced and the account is left in place; there is
// no rollback, and the next directory write for the id repairs the state.
func (s *Service) CreateUser(ctx context.Context, caller *session.Principal, email, password, role string) (*UserRecord, error) {
	if !caller.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if role != string(session.RoleUser) && role != string(session.RoleAdmin) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	account, err := s.accounts.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}

	record := &UserRecord{
		ID:        account.ID,
		Email:     account.Email,
		Role:      role,
		Created:   s.now().UTC().Format(time.RFC3339),
		CreatedBy: caller.ID,
	}

	if err := s.store.Set(ctx, "users/"+account.ID, directoryValue(record)); err != nil {
		s.logger.Warn("account created but directory write failed",
			"account_id", account.ID, "error", err)
		return nil, fmt.Errorf("writing directory record: %w", err)
	}

	if role == string(session.RoleAdmin) {
		if err := s.store.Set(ctx, "admins/"+account.ID, registryValue(record)); err != nil {
			s.logger.Warn("directory written but registry write failed",
				"account_id", account.ID, "error", err)
			return nil, fmt.Errorf("writing admin registry: %w", err)
		}
	}

	s.record(ctx, "user_create", account.ID, caller.ID,
		map[string]any{"email": account.Email, "role": role})
	s.logger.Info("user created", "account_id", account.ID, "role", role, "created_by", caller.ID)
	return record, nil
}

// UpdateUserRole changes a directory record's role and keeps the admin
// registry in step, ordered so an interrupted operation fails toward less
// access.
func (s *Service) UpdateUserRole(ctx context.Context, caller *session.Principal, id, newRole string) error {
	if !caller.IsAdmin() {
		return ErrUnauthorized
	}
	if newRole != string(session.RoleUser) && newRole != string(session.RoleAdmin) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, newRole)
	}

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.Role == newRole {
		return nil
	}

	if newRole == string(session.RoleUser) {
		// Demotion: registry entry goes first
		if err := s.isLastAdmin(ctx, id); err != nil {
			return err
		}
		if err := s.store.Remove(ctx, "admins/"+id); err != nil {
			return fmt.Errorf("removing admin registry entry: %w", err)
		}
		if err := s.store.Set(ctx, "users/"+id+"/role", newRole); err != nil {
			return fmt.Errorf("writing directory role: %w", err)
		}
	} else {
		// Promotion: directory role goes first
		if err := s.store.Set(ctx, "users/"+id+"/role", newRole); err != nil {
			return fmt.Errorf("writing directory role: %w", err)
		}
		record.Role = newRole
		if err := s.store.Set(ctx, "admins/"+id, registryValue(record)); err != nil {
			return fmt.Errorf("writing admin registry: %w", err)
		}
	}

	s.record(ctx, "role_update", id, caller.ID,
		map[string]any{"role": newRole})
	s.logger.Info("role updated", "account_id", id, "role", newRole, "updated_by", caller.ID)
	return nil
}

// DeleteUser removes the directory and registry entries. The identity
// account is not revoked here; sign-in still succeeds but resolves to no
// directory record and therefore the user role with an empty device view.
func (s *Service) DeleteUser(ctx context.Context, caller *session.Principal, id string) error {
	if !caller.IsAdmin() {
		return ErrUnauthorized
	}

	if _, err := s.getRecord(ctx, id); err != nil {
		return err
	}
	if err := s.isLastAdmin(ctx, id); err != nil {
		return err
	}

	// Registry first, same fail-toward-less-access ordering as demotion
	if err := s.store.Remove(ctx, "admins/"+id); err != nil {
		return fmt.Errorf("removing admin registry entry: %w", err)
	}
	if err := s.store.Remove(ctx, "users/"+id); err != nil {
		return fmt.Errorf("removing directory record: %w", err)
	}

	s.record(ctx, "user_delete", id, caller.ID, nil)
	s.logger.Info("user deleted", "account_id", id, "deleted_by", caller.ID)
	return nil
}

// ListUsers returns every directory record. Admin only.
func (s *Service) ListUsers(ctx context.Context, caller *session.Principal) ([]UserRecord, error) {
	if !caller.IsAdmin() {
		return nil, ErrUnauthorized
	}

	value, err := s.store.Get(ctx, "users")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []UserRecord{}, nil
		}
		return nil, fmt.Errorf("reading user directory: %w", err)
	}

	collection, ok := value.(map[string]any)
	if !ok {
		return []UserRecord{}, nil
	}

	records := make([]UserRecord, 0, len(collection))
	for id, raw := range collection {
		record := recordFromValue(id, raw)
		if record == nil {
			s.logger.Warn("skipping malformed directory record", "account_id", id)
			continue
		}
		records = append(records, *record)
	}
	return records, nil
}

// getRecord reads and decodes users/{id}.
func (s *Service) getRecord(ctx context.Context, id string) (*UserRecord, error) {
	value, err := s.store.Get(ctx, "users/"+id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("reading directory record: %w", err)
	}

	record := recordFromValue(id, value)
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return record, nil
}

// isLastAdmin refuses operations that would empty the admin registry.
func (s *Service) isLastAdmin(ctx context.Context, id string) error {
	value, err := s.store.Get(ctx, "admins")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("reading admin registry: %w", err)
	}

	registry, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	if len(registry) == 1 {
		if _, only := registry[id]; only {
			return ErrLastAdmin
		}
	}
	return nil
}

// record writes an audit entry. Failures are logged and swallowed so an
// audit outage never blocks an admin operation.
func (s *Service) record(ctx context.Context, action, entityID, actorID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &audit.AuditLog{
		Action:     action,
		EntityType: "user",
		EntityID:   entityID,
		ActorID:    actorID,
		Details:    details,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}

func directoryValue(r *UserRecord) map[string]any {
	value := map[string]any{
		"email":   r.Email,
		"role":    r.Role,
		"created": r.Created,
	}
	if r.CreatedBy != "" {
		value["created_by"] = r.CreatedBy
	}
	return value
}

func registryValue(r *UserRecord) map[string]any {
	return map[string]any{
		"email":   r.Email,
		"role":    r.Role,
		"created": r.Created,
	}
}

func recordFromValue(id string, value any) *UserRecord {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	record := &UserRecord{ID: id}
	record.Email, _ = m["email"].(string)
	record.Role, _ = m["role"].(string)
	record.Created, _ = m["created"].(string)
	record.CreatedBy, _ = m["created_by"].(string)
	if record.Email == "" || record.Role == "" {
		return nil
	}
	return record
}
