package auth

import (
	"fmt"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-50 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,50}$`)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Well-known role names.
const (
	RoleAdmin  = "ADMIN"
	RoleAgente = "AGENTE"

	// DefaultRole is granted at registration when no roles are requested.
	DefaultRole = RoleAgente

	// rolePrefix is the authority prefix stripped from role names.
	rolePrefix = "ROLE_"
)

// User is an authenticated human account, loaded with its roles.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"` // never serialised
	FullName       string     `json:"full_name,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	SIPExtension   string     `json:"sip_extension,omitempty"`
	IsActive       bool       `json:"is_active"`
	EmailVerified  bool       `json:"email_verified"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LastAccessAt   *time.Time `json:"last_access_at,omitempty"`
	Roles          []Role     `json:"roles"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Role is a named bundle of permissions with its organisational assignments.
type Role struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	IsActive    bool             `json:"is_active"`
	Permissions []Permission     `json:"permissions"`
	Assignments []RoleAssignment `json:"assignments"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Permission is a single capability code such as GESTIONES_CREAR.
type Permission struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category"`
	DisplayOrder int       `json:"display_order"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ScopeKind is the level of the organisation a role assignment targets.
type ScopeKind string

const (
	ScopeTenant       ScopeKind = "TENANT"
	ScopePortfolio    ScopeKind = "PORTFOLIO"
	ScopeSubPortfolio ScopeKind = "SUB_PORTFOLIO"
)

// RoleAssignment binds a role to a tenant, portfolio or sub-portfolio.
type RoleAssignment struct {
	ID             string    `json:"id"`
	RoleID         string    `json:"role_id"`
	Kind           ScopeKind `json:"scope_kind"`
	TenantID       int64     `json:"tenant_id"`
	PortfolioID    *int64    `json:"portfolio_id,omitempty"`
	SubPortfolioID *int64    `json:"sub_portfolio_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks that the identifiers present match the scope kind.
func (a RoleAssignment) Validate() error {
	if a.TenantID <= 0 {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidAssignment)
	}
	switch a.Kind {
	case ScopeTenant:
		if a.PortfolioID != nil || a.SubPortfolioID != nil {
			return fmt.Errorf("%w: tenant scope cannot carry portfolio ids", ErrInvalidAssignment)
		}
	case ScopePortfolio:
		if a.PortfolioID == nil || a.SubPortfolioID != nil {
			return fmt.Errorf("%w: portfolio scope requires exactly a portfolio id", ErrInvalidAssignment)
		}
	case ScopeSubPortfolio:
		if a.PortfolioID == nil || a.SubPortfolioID == nil {
			return fmt.Errorf("%w: sub-portfolio scope requires portfolio and sub-portfolio ids", ErrInvalidAssignment)
		}
	default:
		return fmt.Errorf("%w: unknown scope kind %q", ErrInvalidAssignment, a.Kind)
	}
	return nil
}

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "ACCESS"
	TokenRefresh TokenKind = "REFRESH"
)

// ClientMeta is the optional request context recorded with a token.
type ClientMeta struct {
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Device    string `json:"device,omitempty"`
}

// Token is the persisted record of an issued token.
// Only the SHA-256 hash of the signed string is stored.
type Token struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"` // never serialised
	Kind      TokenKind  `json:"kind"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsActive  bool       `json:"is_active"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	ClientMeta
}

// IsValid reports whether the token is active, unrevoked and unexpired at now.
func (t *Token) IsValid(now time.Time) bool {
	return t.IsActive && !t.Revoked && now.Before(t.ExpiresAt)
}

// IssuedToken is a freshly signed token together with its lifetime.
type IssuedToken struct {
	Value     string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TTL returns the lifetime the token was issued with.
func (t IssuedToken) TTL() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// Authorities are the effective role names and permission codes of a user.
type Authorities struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Scope is the organisational scope a user operates in. Nil fields mean unscoped.
type Scope struct {
	TenantID       *int64 `json:"tenant_id"`
	PortfolioID    *int64 `json:"portfolio_id"`
	SubPortfolioID *int64 `json:"sub_portfolio_id"`
}

// Bundle is the result of a successful login, refresh or registration.
type Bundle struct {
	UserID         string   `json:"user_id"`
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	FullName       string   `json:"full_name,omitempty"`
	SIPExtension   string   `json:"sip_extension,omitempty"`
	AccessToken    string   `json:"access_token"`
	RefreshToken   string   `json:"refresh_token"`
	TokenType      string   `json:"token_type"`
	ExpiresIn      int64    `json:"expires_in"`
	Roles          []string `json:"roles"`
	Permissions    []string `json:"permissions"`
	TenantID       *int64   `json:"tenant_id"`
	PortfolioID    *int64   `json:"portfolio_id"`
	SubPortfolioID *int64   `json:"sub_portfolio_id"`
	Message        string   `json:"message"`
}

// Profile is the public view of the current user.
type Profile struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	SIPExtension  string     `json:"sip_extension,omitempty"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	LastAccessAt  *time.Time `json:"last_access_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	RoleIDs       []string   `json:"role_ids"`
	Authorities
	Scope
}

// LoginRequest carries credentials and the client context of a login.
type LoginRequest struct {
	Username string
	Password string
	ClientMeta
}

// RegisterRequest describes a new account. Roles are role names; an empty
// list grants DefaultRole.
type RegisterRequest struct {
	Username     string
	Email        string
	Password     string
	FullName     string
	Phone        string
	SIPExtension string
	Roles        []string
}
