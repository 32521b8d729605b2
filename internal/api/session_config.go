package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cashi/auth-core/internal/sessionconfig"
)

type setSessionConfigRequest struct {
	Value *int `json:"value"`
}

type sessionConfigValue struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

// handleListSessionConfig returns every session setting with its value.
// Pass ?detail=true to get descriptions and timestamps as well.
func (s *Server) handleListSessionConfig(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("detail") == "true" {
		entries, err := s.sessionConfig.List(r.Context())
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": entries})
		return
	}
	writeJSON(w, http.StatusOK, s.sessionConfig.GetAll(r.Context()))
}

// handleGetSessionConfig returns one session setting.
func (s *Server) handleGetSessionConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !sessionconfig.IsValidKey(key) {
		writeNotFound(w, "unknown session config key: "+key)
		return
	}
	writeJSON(w, http.StatusOK, sessionConfigValue{Key: key, Value: s.sessionConfig.Get(r.Context(), key)})
}

// handleSetSessionConfig updates one session setting.
func (s *Server) handleSetSessionConfig(w http.ResponseWriter, r *http.Request) {
	var req setSessionConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}
	if *req.Value < 0 {
		writeBadRequest(w, "value must not be negative")
		return
	}

	key := chi.URLParam(r, "key")
	if err := s.sessionConfig.Set(r.Context(), key, *req.Value); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("session config changed", "key", key, "value", *req.Value, "by", claimsFromContext(r.Context()).Subject)
	writeJSON(w, http.StatusOK, sessionConfigValue{Key: key, Value: *req.Value})
}

// handleInitializeSessionConfig creates any missing settings with their defaults.
func (s *Server) handleInitializeSessionConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.sessionConfig.InitializeDefaults(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "session config initialised"})
}
