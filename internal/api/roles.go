package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cashi/auth-core/internal/auth"
)

// Role field limits.
const (
	maxRoleNameLength        = 50
	maxRoleDescriptionLength = 255
)

type assignmentRequest struct {
	Kind           auth.ScopeKind `json:"scope_kind"`
	TenantID       int64          `json:"tenant_id"`
	PortfolioID    *int64         `json:"portfolio_id,omitempty"`
	SubPortfolioID *int64         `json:"sub_portfolio_id,omitempty"`
}

type roleRequest struct {
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	IsActive      *bool               `json:"is_active,omitempty"`
	PermissionIDs []string            `json:"permission_ids"`
	Assignments   []assignmentRequest `json:"assignments"`
}

// toRole validates the request and converts it into a role. A missing
// is_active defaults to true.
func (req roleRequest) toRole(id string) (*auth.Role, string) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, "name is required"
	}
	if len(name) > maxRoleNameLength {
		return nil, "name must be at most 50 characters"
	}
	if len(req.Description) > maxRoleDescriptionLength {
		return nil, "description must be at most 255 characters"
	}

	role := &auth.Role{
		ID:          id,
		Name:        name,
		Description: req.Description,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	for _, pid := range req.PermissionIDs {
		role.Permissions = append(role.Permissions, auth.Permission{ID: pid})
	}
	for _, a := range req.Assignments {
		role.Assignments = append(role.Assignments, auth.RoleAssignment{
			Kind:           a.Kind,
			TenantID:       a.TenantID,
			PortfolioID:    a.PortfolioID,
			SubPortfolioID: a.SubPortfolioID,
		})
	}
	return role, ""
}

// handleListRoles returns every role with its permissions and assignments.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.roles.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roles": roles,
		"count": len(roles),
	})
}

// handleGetRole returns a single role.
func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.roles.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// handleCreateRole creates a role.
func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	role, problem := req.toRole("")
	if problem != "" {
		writeBadRequest(w, problem)
		return
	}

	if err := s.roles.Create(r.Context(), role); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("role created", "role_id", role.ID, "name", role.Name, "by", claimsFromContext(r.Context()).Subject)
	writeJSON(w, http.StatusCreated, role)
}

// handleUpdateRole replaces a role's fields, permissions and assignments.
func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	role, problem := req.toRole(chi.URLParam(r, "id"))
	if problem != "" {
		writeBadRequest(w, problem)
		return
	}

	if err := s.roles.Update(r.Context(), role); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("role updated", "role_id", role.ID, "name", role.Name, "by", claimsFromContext(r.Context()).Subject)
	writeJSON(w, http.StatusOK, role)
}

// handleDeleteRole deletes a role.
func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.roles.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("role deleted", "role_id", id, "by", claimsFromContext(r.Context()).Subject)
	writeJSON(w, http.StatusOK, messageResponse{Message: "role deleted"})
}
