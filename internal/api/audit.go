package api

import (
	"net/http"
	"strconv"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/audit"
)

// handleListAudit returns the audit trail, newest first. Admin only.
//
// Query parameters:
//   - action: filter by action (user_create, role_update, user_delete)
//   - entity_type: filter by entity type (user, device)
//   - entity_id: filter by specific entity ID
//   - limit, offset: pagination
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if principal == nil || !principal.IsAdmin() {
		writeForbidden(w, "admin role required")
		return
	}

	if s.audit == nil {
		writeNotFound(w, "audit trail not enabled")
		return
	}

	filter := audit.Filter{
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entity_type"),
		EntityID:   r.URL.Query().Get("entity_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list audit logs failed", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
