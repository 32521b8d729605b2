package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cashi/auth-core/internal/auth"
)

// User field limits.
const (
	maxEmailLength    = 100
	maxFullNameLength = 200
	maxPhoneLength    = 20
	maxSIPLength      = 20
)

// ─── Request/Response Types ────────────────────────────────────────

type createUserRequest struct {
	Username     string   `json:"username"`
	Email        string   `json:"email,omitempty"`
	FullName     string   `json:"full_name,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	SIPExtension string   `json:"sip_extension,omitempty"`
	IsActive     *bool    `json:"is_active,omitempty"`
	RoleIDs      []string `json:"role_ids,omitempty"`
}

type updateUserRequest struct {
	Username     *string  `json:"username,omitempty"`
	Email        *string  `json:"email,omitempty"`
	FullName     *string  `json:"full_name,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
	SIPExtension *string  `json:"sip_extension,omitempty"`
	IsActive     *bool    `json:"is_active,omitempty"`
	RoleIDs      []string `json:"role_ids"`
	Unlock       bool     `json:"unlock,omitempty"`
}

// createdUserResponse carries the generated password. It is only ever
// returned by the create call.
type createdUserResponse struct {
	*auth.User
	GeneratedPassword string `json:"generated_password"`
}

// fieldProblem returns the first over-long field, or "".
func fieldProblem(email, fullName, phone, sip *string) string {
	switch {
	case email != nil && len(*email) > maxEmailLength:
		return "email must be at most 100 characters"
	case fullName != nil && len(*fullName) > maxFullNameLength:
		return "full_name must be at most 200 characters"
	case phone != nil && len(*phone) > maxPhoneLength:
		return "phone must be at most 20 characters"
	case sip != nil && len(*sip) > maxSIPLength:
		return "sip_extension must be at most 20 characters"
	}
	return ""
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleListUsers returns every account.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.ListUsers(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleGetUser returns a single account.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleCreateUser creates an account with a generated password.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeBadRequest(w, "username is required")
		return
	}
	if problem := fieldProblem(&req.Email, &req.FullName, &req.Phone, &req.SIPExtension); problem != "" {
		writeBadRequest(w, problem)
		return
	}

	claims := claimsFromContext(r.Context())
	created, err := s.auth.CreateUser(r.Context(), auth.NewUser{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		Phone:        req.Phone,
		SIPExtension: req.SIPExtension,
		IsActive:     req.IsActive,
		RoleIDs:      req.RoleIDs,
	}, claims.Subject)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createdUserResponse{User: created.User, GeneratedPassword: created.GeneratedPassword})
}

// handleUpdateUser patches an account. Administrators cannot deactivate
// themselves or change their own roles.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if problem := fieldProblem(req.Email, req.FullName, req.Phone, req.SIPExtension); problem != "" {
		writeBadRequest(w, problem)
		return
	}

	if id == claims.UserID {
		if req.IsActive != nil && !*req.IsActive {
			writeForbidden(w, "cannot deactivate your own account")
			return
		}
		if req.RoleIDs != nil {
			writeForbidden(w, "cannot change your own roles")
			return
		}
	}

	user, err := s.auth.UpdateUser(r.Context(), id, auth.UserUpdate{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		Phone:        req.Phone,
		SIPExtension: req.SIPExtension,
		IsActive:     req.IsActive,
		RoleIDs:      req.RoleIDs,
		Unlock:       req.Unlock,
	}, claims.Subject)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes an account and, with it, its tokens.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	if id == claims.UserID {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	if err := s.auth.DeleteUser(r.Context(), id, claims.Subject); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "user deleted"})
}

// handleListUserSessions lists another account's active tokens.
func (s *Server) handleListUserSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.auth.GetUser(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	tokens, err := s.auth.ActiveSessions(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if tokens == nil {
		tokens = []auth.Token{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": tokens,
		"count":    len(tokens),
	})
}

// handleRevokeUserSessions revokes every token of another account.
func (s *Server) handleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.auth.GetUser(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if err := s.auth.LogoutAll(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("user sessions revoked", "user_id", id, "by", claimsFromContext(r.Context()).Subject)
	writeJSON(w, http.StatusOK, messageResponse{Message: "all sessions closed"})
}
