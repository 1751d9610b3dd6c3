package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/ems-console/internal/register"
)

func (s *Server) handleListRegisters(w http.ResponseWriter, r *http.Request) {
	regs, err := s.console.ListRegisters(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "list registers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registers": regs, "count": len(regs)})
}

func (s *Server) handleListDeviceRegisters(w http.ResponseWriter, r *http.Request) {
	regs, err := s.console.ListDeviceRegisters(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err, "list registers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registers": regs, "count": len(regs)})
}

// handleCreateRegister adds a register to the device in the path.
func (s *Server) handleCreateRegister(w http.ResponseWriter, r *http.Request) {
	var f register.Form
	if !decodeBody(w, r, &f) {
		return
	}

	reg, err := s.console.CreateRegister(r.Context(), chi.URLParam(r, "id"), f)
	if err != nil {
		s.writeServiceError(w, r, err, "create register")
		return
	}

	s.logger.Info("register created", "id", reg.ID, "device_id", reg.DeviceID, "by", username(r))
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) handleUpdateRegister(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	reg, err := s.console.UpdateRegister(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		s.writeServiceError(w, r, err, "update register")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleDeleteRegister(w http.ResponseWriter, r *http.Request) {
	existed, err := s.console.DeleteRegister(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err, "delete register")
		return
	}
	if !existed {
		writeNotFound(w, "register not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
