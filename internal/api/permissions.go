package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cashi/auth-core/internal/auth"
)

// handleListPermissions returns the permission catalogue.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.permissions.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writePermissions(w, perms)
}

// handleGroupedPermissions returns permissions keyed by category.
func (s *Server) handleGroupedPermissions(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.permissions.Grouped(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

// handlePermissionsByCategory returns the permissions of one category.
// Categories are stored upper-case, so the path segment is normalised.
func (s *Server) handlePermissionsByCategory(w http.ResponseWriter, r *http.Request) {
	category := strings.ToUpper(chi.URLParam(r, "category"))
	perms, err := s.permissions.ListByCategory(r.Context(), category)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writePermissions(w, perms)
}

func writePermissions(w http.ResponseWriter, perms []auth.Permission) {
	if perms == nil {
		perms = []auth.Permission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": perms,
		"count":       len(perms),
	})
}
