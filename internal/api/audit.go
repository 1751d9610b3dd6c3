package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/ems-console/internal/audit"
)

// handleListAudit returns console activity, newest first.
// Query: action, entityType, entityId, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log requires the sqlite store")
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
	}

	var err error
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
	}

	res, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err, "list audit log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
