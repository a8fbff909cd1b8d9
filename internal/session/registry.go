package session

import (
	"context"
	"strings"
	"sync"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/identity"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
)

// Registry tracks one Manager per signed-in account so the HTTP layer can
// serve many concurrent users. Managers are keyed by normalised email and
// account id; a re-login from a second browser tab reuses the existing
// manager, keeping its Subscribe channels alive.
type Registry struct {
	verifier identity.Verifier
	store    store.Store
	logger   Logger

	mu      sync.Mutex
	byEmail map[string]*Manager
	byID    map[string]*Manager
}

// NewRegistry creates an empty registry. A nil logger is replaced with a
// no-op implementation.
func NewRegistry(verifier identity.Verifier, st store.Store, logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		verifier: verifier,
		store:    st,
		logger:   logger,
		byEmail:  make(map[string]*Manager),
		byID:     make(map[string]*Manager),
	}
}

// SignIn verifies credentials through the account's manager, creating one on
// first sign-in. On success the manager is indexed by account id for token
// lookups.
func (r *Registry) SignIn(ctx context.Context, email, password string) (*Principal, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	r.mu.Lock()
	mgr, existed := r.byEmail[key]
	if !existed {
		mgr = NewManager(r.verifier, r.store, r.logger)
		r.byEmail[key] = mgr
	}
	r.mu.Unlock()

	principal, err := mgr.SignIn(ctx, email, password)
	if err != nil {
		if !existed {
			// A concurrent sign-in may have reused and established this
			// manager; only drop it while it holds no session.
			r.mu.Lock()
			if r.byEmail[key] == mgr && mgr.Current() == nil {
				delete(r.byEmail, key)
			}
			r.mu.Unlock()
		}
		return nil, err
	}

	r.mu.Lock()
	r.byID[principal.ID] = mgr
	r.mu.Unlock()
	return principal, nil
}

// Adopt returns the account's manager, creating and resuming one when the
// account authenticated out of band: a bearer token issued before the
// server restarted has no live manager, yet its holder still needs session
// events. The manager's role is freshly resolved either way.
func (r *Registry) Adopt(ctx context.Context, accountID, email string) *Manager {
	key := strings.ToLower(strings.TrimSpace(email))

	r.mu.Lock()
	mgr := r.byID[accountID]
	if mgr == nil && key != "" {
		mgr = r.byEmail[key]
	}
	if mgr == nil {
		mgr = NewManager(r.verifier, r.store, r.logger)
	}
	if key != "" {
		r.byEmail[key] = mgr
	}
	r.byID[accountID] = mgr
	r.mu.Unlock()

	if mgr.Current() == nil {
		mgr.Resume(ctx, accountID, email)
	} else {
		mgr.Refresh(ctx)
	}
	return mgr
}

// SignOut ends the account's session and drops the manager from both
// indexes. Safe to call for unknown ids.
func (r *Registry) SignOut(accountID string) {
	r.mu.Lock()
	mgr := r.byID[accountID]
	if mgr == nil {
		r.mu.Unlock()
		return
	}
	delete(r.byID, accountID)
	for key, m := range r.byEmail {
		if m == mgr {
			delete(r.byEmail, key)
		}
	}
	r.mu.Unlock()

	mgr.SignOut()
}

// Manager returns the account's session manager, or nil if the account has
// never signed in since the server started.
func (r *Registry) Manager(accountID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[accountID]
}

// Principal returns the account's signed-in principal, or nil.
func (r *Registry) Principal(accountID string) *Principal {
	mgr := r.Manager(accountID)
	if mgr == nil {
		return nil
	}
	return mgr.Current()
}

// Refresh re-resolves the account's role from the store. Subscribers on the
// account's manager are notified if the role changed.
func (r *Registry) Refresh(ctx context.Context, accountID string) {
	if mgr := r.Manager(accountID); mgr != nil {
		mgr.Refresh(ctx)
	}
}

// RefreshAll re-resolves every signed-in account's role. Called after store
// mutations that may have changed role assignments out from under active
// sessions.
func (r *Registry) RefreshAll(ctx context.Context) {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.byID))
	for _, mgr := range r.byID {
		managers = append(managers, mgr)
	}
	r.mu.Unlock()

	for _, mgr := range managers {
		mgr.Refresh(ctx)
	}
}
