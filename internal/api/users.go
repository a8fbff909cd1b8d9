package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/admin"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/identity"
)

// createUserRequest is the request body for POST /users.
type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// setRoleRequest is the request body for PUT /users/{id}/role.
type setRoleRequest struct {
	Role string `json:"role"`
}

// handleListUsers returns the user directory. Admin only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())

	users, err := s.admin.ListUsers(r.Context(), principal)
	if err != nil {
		s.writeAdminError(w, err, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser provisions a new account plus its directory record.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}

	record, err := s.admin.CreateUser(r.Context(), principal, req.Email, req.Password, req.Role)
	if err != nil {
		s.writeAdminError(w, err, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// handleSetUserRole changes a user's role between user and admin.
func (s *Server) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal := principalFromContext(r.Context())

	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.admin.UpdateUserRole(r.Context(), principal, id, req.Role); err != nil {
		s.writeAdminError(w, err, "failed to update role")
		return
	}

	// Any live session for the target sees the new role immediately.
	s.sessions.Refresh(r.Context(), id)

	writeJSON(w, http.StatusOK, map[string]string{"status": "role_updated", "role": req.Role})
}

// handleDeleteUser removes a user's directory record and registry entry.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal := principalFromContext(r.Context())

	if err := s.admin.DeleteUser(r.Context(), principal, id); err != nil {
		s.writeAdminError(w, err, "failed to delete user")
		return
	}

	s.sessions.SignOut(id)

	w.WriteHeader(http.StatusNoContent)
}

// writeAdminError maps admin service and identity errors onto HTTP responses.
func (s *Server) writeAdminError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, admin.ErrUnauthorized):
		writeForbidden(w, "admin role required")
	case errors.Is(err, admin.ErrInvalidRole):
		writeBadRequest(w, "role must be user or admin")
	case errors.Is(err, admin.ErrUserNotFound):
		writeNotFound(w, "user not found")
	case errors.Is(err, admin.ErrLastAdmin):
		writeConflict(w, "cannot remove the last admin")
	case errors.Is(err, identity.ErrEmailExists):
		writeConflict(w, "email already registered")
	case errors.Is(err, identity.ErrEmailInvalid):
		writeBadRequest(w, "malformed email address")
	case errors.Is(err, identity.ErrPasswordTooShort):
		writeBadRequest(w, "password must be at least 8 characters")
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
