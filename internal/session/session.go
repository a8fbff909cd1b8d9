package session

import (
	"context"
	"errors"
	"sync"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/identity"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
)

// Role is a principal's resolved access level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is an authenticated identity with its resolved role.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Event notifies a listener of a principal transition. A nil Principal
// means signed out.
type Event struct {
	Principal *Principal
}

// Manager holds the current principal and notifies listeners on transitions.
type Manager struct {
	verifier identity.Verifier
	store    store.Store
	logger   Logger

	mu      sync.RWMutex
	current *Principal
	subs    map[int]chan Event
	nextSub int
}

// NewManager creates a session manager.
func NewManager(verifier identity.Verifier, st store.Store, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		verifier: verifier,
		store:    st,
		logger:   logger,
		subs:     make(map[int]chan Event),
	}
}

// SignIn verifies credentials and resolves the principal's role before the
// session is considered established.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Principal, error) {
	account, err := m.verifier.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	role := ResolveRole(ctx, m.store, account.ID, m.logger)

	principal := &Principal{ID: account.ID, Email: account.Email, Role: role}

	m.mu.Lock()
	m.current = principal
	m.mu.Unlock()

	m.logger.Info("signed in", "account_id", principal.ID, "role", string(role))
	m.notify(Event{Principal: principal})
	return principal, nil
}

// Resume establishes a session for an identity verified out of band, such
// as a bearer token that outlived a server restart. The role is resolved
// fresh from the store; if a session is already active it is left as is.
func (m *Manager) Resume(ctx context.Context, accountID, email string) *Principal {
	role := ResolveRole(ctx, m.store, accountID, m.logger)
	principal := &Principal{ID: accountID, Email: email, Role: role}

	m.mu.Lock()
	if m.current != nil {
		p := *m.current
		m.mu.Unlock()
		return &p
	}
	m.current = principal
	m.mu.Unlock()

	m.logger.Info("session resumed", "account_id", accountID, "role", string(role))
	m.notify(Event{Principal: principal})
	return principal
}

// SignOut clears the current principal. Safe to call when already signed out.
func (m *Manager) SignOut() {
	m.mu.Lock()
	wasSignedIn := m.current != nil
	m.current = nil
	m.mu.Unlock()

	if wasSignedIn {
		m.logger.Info("signed out")
		m.notify(Event{})
	}
}

// Current returns the signed-in principal, or nil.
func (m *Manager) Current() *Principal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	p := *m.current
	return &p
}

// Refresh re-resolves the current principal's role from the store and
// notifies listeners if it changed.
func (m *Manager) Refresh(ctx context.Context) {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()
	if current == nil {
		return
	}

	role := ResolveRole(ctx, m.store, current.ID, m.logger)
	if role == current.Role {
		return
	}

	updated := &Principal{ID: current.ID, Email: current.Email, Role: role}
	m.mu.Lock()
	if m.current == nil || m.current.ID != updated.ID {
		m.mu.Unlock()
		return
	}
	m.current = updated
	m.mu.Unlock()

	m.logger.Info("role changed", "account_id", updated.ID, "role", string(role))
	m.notify(Event{Principal: updated})
}

// Subscribe registers a listener for principal transitions. The returned
// cancel function releases the subscription. Delivery is latest-wins: a slow
// listener sees the most recent transition, not every intermediate one.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) notify(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// ResolveRole derives a role from the realtime store: presence under
// admins/{id} grants admin, otherwise the users/{id} directory role applies.
// Absent records and lookup failures both resolve to user.
func ResolveRole(ctx context.Context, st store.Store, accountID string, logger Logger) Role {
	if logger == nil {
		logger = noopLogger{}
	}

	_, err := st.Get(ctx, "admins/"+accountID)
	switch {
	case err == nil:
		return RoleAdmin
	case !errors.Is(err, store.ErrNotFound):
		logger.Warn("role resolution failed, demoting to user",
			"account_id", accountID, "error", err)
		return RoleUser
	}

	value, err := st.Get(ctx, "users/"+accountID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("role resolution failed, demoting to user",
				"account_id", accountID, "error", err)
		}
		return RoleUser
	}

	record, ok := value.(map[string]any)
	if !ok {
		return RoleUser
	}
	if role, _ := record["role"].(string); role == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}
