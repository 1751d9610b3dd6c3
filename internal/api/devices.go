package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/ems-console/internal/device"
)

// readBody reads the whole request body, answering 413 or 400 itself when it
// cannot. The boolean is false when a response has already been written.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return nil, false
		}
		writeBadRequest(w, "failed to read request body")
		return nil, false
	}
	return body, true
}

// decodeBody reads and unmarshals a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.console.ListDevices(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.console.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err, "get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice validates the submitted form and creates a device.
// Validation failures answer 422 with every message.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var f device.Form
	if !decodeBody(w, r, &f) {
		return
	}

	dev, err := s.console.CreateDevice(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err, "create device")
		return
	}

	s.logger.Info("device created", "id", dev.ID, "name", dev.Name, "by", username(r))
	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice applies a partial update. Fields absent from the body
// keep their stored values.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	dev, err := s.console.UpdateDevice(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		s.writeServiceError(w, r, err, "update device")
		return
	}

	s.logger.Info("device updated", "id", dev.ID, "by", username(r))
	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device and all of its registers.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existed, err := s.console.DeleteDevice(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, "delete device")
		return
	}
	if !existed {
		writeNotFound(w, "device not found")
		return
	}

	s.logger.Info("device deleted", "id", id, "by", username(r))
	w.WriteHeader(http.StatusNoContent)
}

type connectResponse struct {
	Device    *device.Device `json:"device"`
	Connected bool           `json:"connected"`
	Error     string         `json:"error,omitempty"`
}

// handleConnectDevice probes the device. A failed probe is not an HTTP
// error: once the status is stored the response carries the device, now
// Disconnected, and the reason.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.connections.Connect(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, connectResponse{Device: dev, Connected: true})
	case dev != nil:
		writeJSON(w, http.StatusOK, connectResponse{Device: dev, Error: err.Error()})
	default:
		s.writeServiceError(w, r, err, "connect device")
	}
}

func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.connections.Disconnect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err, "disconnect device")
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{Device: dev})
}
