package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/identity"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/session"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// Token parsing errors surfaced as 401 messages.
var (
	errMissingToken   = errors.New("authorization header is required")
	errMalformedToken = errors.New("authorization header must be a bearer token")
	errInvalidToken   = errors.New("invalid or expired token")
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	AccountID   string `json:"account_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use, expire after ticketTTL, and carry the identity of
// the account that requested them.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	accountID string
	email     string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// handleLogin authenticates an account and returns a JWT access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	principal, err := s.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrTooManyRequests):
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many sign-in attempts, try again later")
		case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrEmailInvalid):
			writeUnauthorized(w, "invalid credentials")
		default:
			s.logger.Error("login failed", "error", err)
			writeInternalError(w, "login failed")
		}
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl == 0 {
		ttl = 15 // default 15 minutes
	}

	claims := jwt.MapClaims{
		"sub":   principal.ID,
		"email": principal.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Duration(ttl) * time.Minute).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secCfg.JWT.Secret))
	if err != nil {
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
		AccountID:   principal.ID,
		Email:       principal.Email,
		Role:        string(principal.Role),
	})
}

// handleLogout ends the caller's session. The access token itself is not
// revocable; it simply ages out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if principal != nil {
		s.sessions.SignOut(principal.ID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// handleMe returns the caller's principal with the role as resolved for
// this request.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if principal == nil {
		writeUnauthorized(w, "not signed in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": principal.ID,
		"email":      principal.Email,
		"role":       string(principal.Role),
	})
}

// handleWSTicket generates a single-use WebSocket authentication ticket
// bound to the caller's account. The client uses this ticket to authenticate
// the WebSocket connection without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if principal == nil {
		writeUnauthorized(w, "not signed in")
		return
	}

	ticket := generateTicket()

	s.tickets.mu.Lock()
	s.tickets.tickets[ticket] = ticketEntry{
		accountID: principal.ID,
		email:     principal.Email,
		expiresAt: time.Now().Add(ticketTTL),
	}
	s.tickets.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// validateTicket checks a ticket, consumes it (single-use), and returns a
// principal with the role freshly resolved from the store. Redemption
// adopts a session manager for the account so later role changes reach the
// connection even when the bearer token predates this process.
func (s *Server) validateTicket(ctx context.Context, ticket string) (*session.Principal, bool) {
	s.tickets.mu.Lock()
	entry, ok := s.tickets.tickets[ticket]
	delete(s.tickets.tickets, ticket)
	s.tickets.mu.Unlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}

	mgr := s.sessions.Adopt(ctx, entry.accountID, entry.email)
	principal := mgr.Current()
	if principal == nil {
		return nil, false
	}
	return principal, true
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanExpiredTickets removes expired tickets from the store.
func (s *Server) cleanExpiredTickets() {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	now := time.Now()
	for ticket, entry := range s.tickets.tickets {
		if now.After(entry.expiresAt) {
			delete(s.tickets.tickets, ticket)
		}
	}
}

// cleanTicketsLoop runs cleanExpiredTickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanExpiredTickets()
		}
	}
}
