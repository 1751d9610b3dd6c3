package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/ems-console/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int       `json:"expiresIn"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// handleLogin verifies the operator against the configured users and issues
// an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	if err := s.users.Authenticate(req.Username, req.Password); err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error("login failed", "error", err, "request_id", requestID(r))
		}
		s.logger.Warn("login rejected", "username", req.Username, "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	tok, err := auth.IssueToken(strings.ToLower(strings.TrimSpace(req.Username)), s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("issuing token failed", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.logger.Info("operator logged in", "username", req.Username)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(tok.ExpiresAt).Seconds()),
		ExpiresAt:   tok.ExpiresAt,
	})
}
