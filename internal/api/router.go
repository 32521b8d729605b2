package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cashi/auth-core/internal/auth"
)

// healthCheckTimeout bounds each dependency check made by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}

		// Public auth endpoints
		r.Route("/auth", func(r chi.Router) {
			r.With(s.rateLimitMiddleware).Post("/register", s.handleRegister)
			r.With(s.rateLimitMiddleware).Post("/login", s.handleLogin)
			r.Post("/refresh-token", s.handleRefresh)
			r.Get("/validate", s.handleValidate)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/logout", s.handleLogout)
				r.Post("/logout-all", s.handleLogoutAll)
				r.Get("/me", s.handleMe)
				r.Get("/sessions", s.handleSessions)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/permissions", func(r chi.Router) {
				r.Get("/", s.handleListPermissions)
				r.Get("/grouped", s.handleGroupedPermissions)
				r.Get("/category/{category}", s.handlePermissionsByCategory)
			})

			r.Route("/roles", func(r chi.Router) {
				r.Get("/", s.handleListRoles)
				r.Get("/{id}", s.handleGetRole)

				r.Group(func(r chi.Router) {
					r.Use(s.requireRole(auth.RoleAdmin))
					r.Post("/", s.handleCreateRole)
					r.Put("/{id}", s.handleUpdateRole)
					r.Delete("/{id}", s.handleDeleteRole)
				})
			})

			r.Route("/config/session", func(r chi.Router) {
				r.Get("/", s.handleListSessionConfig)
				r.Get("/{key}", s.handleGetSessionConfig)

				r.Group(func(r chi.Router) {
					r.Use(s.requireRole(auth.RoleAdmin))
					r.Put("/{key}", s.handleSetSessionConfig)
					r.Post("/initialize", s.handleInitializeSessionConfig)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(s.requireRole(auth.RoleAdmin))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Get("/{id}", s.handleGetUser)
				r.Put("/{id}", s.handleUpdateUser)
				r.Delete("/{id}", s.handleDeleteUser)
				r.Get("/{id}/sessions", s.handleListUserSessions)
				r.Delete("/{id}/sessions", s.handleRevokeUserSessions)
			})

			r.With(s.requireRole(auth.RoleAdmin)).Get("/audit-logs", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth reports the server status and the result of each dependency
// check. Any failing check turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.healthChecks))

	for name, hc := range s.healthChecks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	writeJSON(w, status, body)
}
