package api

import (
	"encoding/json"
	"net/http"

	"github.com/cashi/auth-core/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type registerRequest struct {
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	FullName     string   `json:"full_name,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	SIPExtension string   `json:"sip_extension,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleRegister creates an account and returns a token bundle.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeBadRequest(w, "username, email, and password are required")
		return
	}

	if !s.mayGrantRoles(r, req.Roles) {
		writeForbidden(w, "only administrators may assign roles at registration")
		return
	}

	bundle, err := s.auth.Register(r.Context(), auth.RegisterRequest{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		FullName:     req.FullName,
		Phone:        req.Phone,
		SIPExtension: req.SIPExtension,
		Roles:        req.Roles,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, bundle)
}

// mayGrantRoles reports whether the caller may register an account with
// roles. Asking for nothing or only the default role is open to anyone;
// any other role needs an ADMIN bearer token.
func (s *Server) mayGrantRoles(r *http.Request, roles []string) bool {
	if len(roles) == 0 || (len(roles) == 1 && roles[0] == auth.DefaultRole) {
		return true
	}
	token := bearerToken(r)
	if token == "" {
		return false
	}
	claims, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		return false
	}
	return auth.HasRole(claims.Roles, auth.RoleAdmin)
}

// handleLogin authenticates a user and returns a token bundle.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	bundle, err := s.auth.Login(r.Context(), auth.LoginRequest{
		Username: req.Username,
		Password: req.Password,
		ClientMeta: auth.ClientMeta{
			ClientIP:  s.clientIP(r),
			UserAgent: r.UserAgent(),
			Device:    req.Device,
		},
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, bundle)
}

// handleRefresh issues a new access token for a refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	bundle, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, bundle)
}

// handleValidate reports whether the bearer token is valid. It always
// answers 200 so clients can poll it without handling errors.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false, Message: "token not provided"})
		return
	}

	if s.auth.Validate(r.Context(), token) {
		writeJSON(w, http.StatusOK, validateResponse{Valid: true, Message: "token is valid"})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: false, Message: "token is invalid or expired"})
}

// handleLogout revokes the bearer token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), tokenFromContext(r.Context())); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// handleLogoutAll revokes every token of the authenticated user.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := s.auth.LogoutAll(r.Context(), claims.UserID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "all sessions closed"})
}

// handleMe returns the profile of the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	profile, err := s.auth.CurrentUser(r.Context(), claims.Subject)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleSessions lists the active tokens of the authenticated user.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	tokens, err := s.auth.ActiveSessions(r.Context(), claims.UserID)
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
