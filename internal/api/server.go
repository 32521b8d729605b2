package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/cashi/auth-core/internal/audit"
	"github.com/cashi/auth-core/internal/auth"
	"github.com/cashi/auth-core/internal/infrastructure/config"
	"github.com/cashi/auth-core/internal/infrastructure/logging"
	"github.com/cashi/auth-core/internal/infrastructure/metrics"
	"github.com/cashi/auth-core/internal/sessionconfig"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by dependencies reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	Logger        *logging.Logger
	Auth          *auth.Service
	Roles         *auth.RoleRepository
	Permissions   *auth.PermissionRepository
	SessionConfig *sessionconfig.Provider
	Audit         audit.Repository         // optional: enables GET /audit-logs
	Metrics       *metrics.Metrics         // optional: enables /metrics and instrumentation
	HealthChecks  map[string]HealthChecker // optional: reported by /health
	Version       string
}

// Server is the HTTP API server.
//
// It is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	logger        *logging.Logger
	auth          *auth.Service
	roles         *auth.RoleRepository
	permissions   *auth.PermissionRepository
	sessionConfig *sessionconfig.Provider
	auditRepo     audit.Repository
	metrics       *metrics.Metrics
	healthChecks  map[string]HealthChecker
	limiter       *ipRateLimiter
	version       string
	server        *http.Server
	cancel        context.CancelFunc // cancels background goroutines on Close()

	trustedProxies []netip.Prefix // peers whose X-Forwarded-For is believed
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Roles == nil || deps.Permissions == nil {
		return nil, fmt.Errorf("role and permission repositories are required")
	}
	if deps.SessionConfig == nil {
		return nil, fmt.Errorf("session config provider is required")
	}
	proxies, err := parseTrustedProxies(deps.Config.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:           deps.Config,
		logger:        deps.Logger.With("component", "api"),
		auth:          deps.Auth,
		roles:         deps.Roles,
		permissions:   deps.Permissions,
		sessionConfig: deps.SessionConfig,
		auditRepo:     deps.Audit,
		metrics:       deps.Metrics,
		healthChecks:  deps.HealthChecks,
		version:       deps.Version,

		trustedProxies: proxies,
	}
	if deps.Config.RateLimit.Enabled {
		s.limiter = newIPRateLimiter(deps.Config.RateLimit.RequestsPerSecond, deps.Config.RateLimit.Burst)
	}

	return s, nil
}

// Handler returns the fully wired router. Start serves the same handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.limiter != nil {
		go s.limiter.cleanupLoop(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
