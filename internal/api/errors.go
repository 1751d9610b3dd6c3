package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/ems-console/internal/connection"
	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/form"
	"github.com/nerrad567/ems-console/internal/push"
	"github.com/nerrad567/ems-console/internal/register"
	"github.com/nerrad567/ems-console/internal/store"
)

// errorBody is the payload under the "error" key of every failed response.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeUnauthorized     = "unauthorised"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeValidation       = "validation_error"
	ErrCodeStorageCorrupted = "storage_corrupted"
	ErrCodeUnavailable      = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeValidation writes a 422 carrying every validation message.
func writeValidation(w http.ResponseWriter, ve *form.ValidationError) {
	message := "validation failed"
	if len(ve.Messages) > 0 {
		message = ve.Messages[0]
	}
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: errorBody{
		Code:    ErrCodeValidation,
		Message: message,
		Details: map[string]any{"messages": ve.Messages},
	}})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything it does
// not recognise is logged and reported as a 500 with a generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var (
		ve *form.ValidationError
		se *push.StatusError
	)

	switch {
	case errors.As(err, &ve):
		writeValidation(w, ve)
	case errors.Is(err, form.ErrParse):
		writeBadRequest(w, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, register.ErrRegisterNotFound):
		writeNotFound(w, "register not found")
	case errors.Is(err, store.ErrVersionConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, "the data changed while saving, reload and try again")
	case errors.Is(err, connection.ErrInProgress):
		writeError(w, http.StatusConflict, ErrCodeConflict, "a connection attempt is already in progress")
	case errors.Is(err, store.ErrCorrupted):
		s.logger.Error(action+" failed", "error", err, "request_id", requestID(r))
		writeError(w, http.StatusInternalServerError, ErrCodeStorageCorrupted, "stored data could not be read")
	case errors.Is(err, push.ErrNoToken), errors.Is(err, push.ErrNoEndpoint):
		writeBadRequest(w, err.Error())
	case errors.As(err, &se):
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, se.Error())
	default:
		s.logger.Error(action+" failed", "error", err, "request_id", requestID(r))
		writeInternalError(w, "failed to "+action)
	}
}
