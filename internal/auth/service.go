package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cashi/auth-core/internal/infrastructure/logging"
)

const (
	tokenTypeBearer = "Bearer"
	bundleMessage   = "Authentication successful"

	// absentUserPassword is hashed once per service to give logins for
	// unknown usernames a hash to verify against.
	absentUserPassword = "authcore-absent-user"
)

// Deps holds the collaborators of a Service.
type Deps struct {
	// DB is the SQLite store. Writes of a login or registration share one transaction.
	DB TxDB

	// Issuer signs and verifies tokens.
	Issuer *Issuer

	// Policy is the lockout policy. The zero value means DefaultLockoutPolicy.
	Policy LockoutPolicy

	// Hasher verifies and creates password hashes. Nil means the default cost.
	Hasher *PasswordHasher

	// Events receives audit and telemetry events. Optional.
	Events EventSink

	// Logger is the component logger. Nil means logging.Default.
	Logger *logging.Logger
}

// Service orchestrates login, refresh, logout and registration.
type Service struct {
	db     TxDB
	users  *UserRepository
	roles  *RoleRepository
	tokens *TokenStore
	issuer *Issuer
	policy LockoutPolicy
	hasher *PasswordHasher
	events EventSink
	logger *logging.Logger
	now    func() time.Time

	absentOnce sync.Once
	absent     string // PHC hash made with hasher's cost
}

// NewService creates an authentication service.
func NewService(deps Deps) (*Service, error) {
	if deps.DB == nil {
		return nil, errors.New("auth service requires a database")
	}
	if deps.Issuer == nil {
		return nil, errors.New("auth service requires a token issuer")
	}

	policy := deps.Policy
	if policy.Threshold <= 0 || policy.Duration <= 0 {
		policy = DefaultLockoutPolicy()
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = DefaultPasswordHasher()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Service{
		db:     deps.DB,
		users:  NewUserRepository(deps.DB),
		roles:  NewRoleRepository(deps.DB),
		tokens: NewTokenStore(deps.DB),
		issuer: deps.Issuer,
		policy: policy,
		hasher: hasher,
		events: deps.Events,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}, nil
}

// Tokens returns the token store used by the service.
func (s *Service) Tokens() *TokenStore {
	return s.tokens
}

// Login verifies credentials and issues an access and refresh token.
//
// A locked or inactive account is rejected before the password is checked
// and no failure is counted. A wrong password increments the failure
// counter in its own committed write. An unknown username still costs one
// password verification.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Bundle, error) {
	user, err := s.users.GetByUsername(ctx, req.Username)
	if errors.Is(err, ErrUserNotFound) {
		s.hasher.Verify(req.Password, s.absentUserHash()) //nolint:errcheck // only the work matters
		s.emit(ctx, Event{
			Action: ActionLogin, Outcome: OutcomeFailure,
			Username: req.Username, ClientIP: req.ClientIP,
			Details: map[string]any{"reason": "unknown_user"},
		})
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	now := s.now()
	if s.policy.IsLocked(user, now) {
		s.emitLoginFailure(ctx, user, req.ClientIP, "locked")
		return nil, &AccountLockedError{Until: *user.LockedUntil}
	}
	if !user.IsActive {
		s.emitLoginFailure(ctx, user, req.ClientIP, "inactive")
		return nil, ErrUserInactive
	}

	ok, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, s.recordFailure(ctx, user, req.ClientIP, now)
	}

	s.policy.OnSuccess(user)
	user.LastAccessAt = &now

	access, refresh, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := NewUserRepository(tx).UpdateLoginState(ctx, user); err != nil {
			return err
		}
		return s.saveTokens(ctx, tx, user, req.ClientMeta, access, refresh)
	})
	if err != nil {
		return nil, fmt.Errorf("completing login: %w", err)
	}

	s.logger.Info("login succeeded", "username", user.Username, "user_id", user.ID)
	s.emit(ctx, Event{
		Action: ActionLogin, Outcome: OutcomeSuccess,
		Username: user.Username, UserID: user.ID, ClientIP: req.ClientIP,
	})
	return s.bundle(user, access, refresh.Value), nil
}

// recordFailure counts a wrong password and reports a resulting lock.
func (s *Service) recordFailure(ctx context.Context, user *User, clientIP string, now time.Time) error {
	s.policy.OnFailure(user, now)
	if err := s.users.UpdateLoginState(ctx, user); err != nil {
		return fmt.Errorf("recording failed login: %w", err)
	}

	s.emitLoginFailure(ctx, user, clientIP, "invalid_password")

	if s.policy.IsLocked(user, now) {
		s.logger.Warn("account locked",
			"username", user.Username,
			"user_id", user.ID,
			"failed_attempts", user.FailedAttempts,
			"locked_until", user.LockedUntil.UTC().Format(time.RFC3339),
		)
		s.emit(ctx, Event{
			Action: ActionLockout, Outcome: OutcomeSuccess,
			Username: user.Username, UserID: user.ID, ClientIP: clientIP,
			Details: map[string]any{
				"failed_attempts": user.FailedAttempts,
				"locked_until":    user.LockedUntil.UTC().Format(time.RFC3339),
			},
		})
	}
	return ErrInvalidCredentials
}

// Refresh issues a new access token for a valid refresh token.
// The refresh token itself is returned unchanged.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Bundle, error) {
	bundle, user, err := s.refresh(ctx, refreshToken)
	if err != nil {
		e := Event{Action: ActionRefresh, Outcome: OutcomeFailure, Details: map[string]any{"reason": err.Error()}}
		if user != nil {
			e.Username, e.UserID = user.Username, user.ID
		}
		s.emit(ctx, e)
		return nil, err
	}

	s.emit(ctx, Event{Action: ActionRefresh, Outcome: OutcomeSuccess, Username: user.Username, UserID: user.ID})
	return bundle, nil
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*Bundle, *User, error) {
	claims, err := s.issuer.Parse(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	if !claims.IsRefresh() {
		return nil, nil, fmt.Errorf("%w: not a refresh token", ErrTokenInvalid)
	}

	record, err := s.tokens.Get(ctx, refreshToken)
	if err != nil {
		return nil, nil, err
	}
	if record.Kind != TokenRefresh {
		return nil, nil, fmt.Errorf("%w: not a refresh token", ErrTokenInvalid)
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading user: %w", err)
	}
	if !record.IsValid(s.now()) {
		return nil, user, ErrTokenRevoked
	}
	if !user.IsActive {
		return nil, user, ErrUserInactive
	}

	access, err := s.issuer.IssueAccess(ctx, user)
	if err != nil {
		return nil, user, err
	}
	if _, err := s.tokens.Save(ctx, access, user, ClientMeta{}); err != nil {
		return nil, user, err
	}
	return s.bundle(user, access, refreshToken), user, nil
}

// Logout revokes an access token. Unknown or revoked tokens are a no-op.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if err := s.tokens.Revoke(ctx, accessToken); err != nil {
		return err
	}

	// Expired tokens still revoke; the subject is only for the audit trail.
	username, _ := s.issuer.ExtractUsername(accessToken) //nolint:errcheck // best effort label
	s.emit(ctx, Event{Action: ActionLogout, Outcome: OutcomeSuccess, Username: username})
	return nil
}

// LogoutAll revokes every token of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	n, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return err
	}

	s.logger.Info("revoked all sessions", "user_id", userID, "revoked", n)
	e := Event{Action: ActionLogoutAll, Outcome: OutcomeSuccess, UserID: userID, Details: map[string]any{"revoked": n}}
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		e.Username = user.Username
	}
	s.emit(ctx, e)
	return nil
}

// Validate reports whether token is correctly signed, unexpired and
// recorded as valid in the store.
func (s *Service) Validate(ctx context.Context, token string) bool {
	if !s.issuer.ValidateSignatureAndExpiry(token) {
		return false
	}
	ok, err := s.tokens.IsValid(ctx, token)
	if err != nil {
		s.logger.Warn("token store lookup failed", "error", err)
		return false
	}
	return ok
}

// Authenticate checks a bearer access token and returns its claims.
// Refresh tokens are rejected.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.issuer.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.IsRefresh() {
		return nil, fmt.Errorf("%w: refresh token presented as access token", ErrTokenInvalid)
	}
	ok, err := s.tokens.IsValid(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// CurrentUser returns the profile of username.
func (s *Service) CurrentUser(ctx context.Context, username string) (*Profile, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	roleIDs := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roleIDs = append(roleIDs, r.ID)
	}
	return &Profile{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		Phone:         user.Phone,
		SIPExtension:  user.SIPExtension,
		IsActive:      user.IsActive,
		EmailVerified: user.EmailVerified,
		LastAccessAt:  user.LastAccessAt,
		CreatedAt:     user.CreatedAt,
		RoleIDs:       roleIDs,
		Authorities:   EffectiveAuthorities(user),
		Scope:         EffectiveScope(user),
	}, nil
}

// Register creates an account and signs it in. Tokens are saved without
// client metadata.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Bundle, error) {
	if !IsValidUsername(req.Username) {
		return nil, ErrInvalidUsername
	}
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if len(req.Password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	taken, err := s.users.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateUsername
	}
	taken, err = s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateEmail
	}

	names := req.Roles
	if len(names) == 0 {
		names = []string{DefaultRole}
	}
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		role, err := s.roles.GetByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, name)
		}
		roles = append(roles, *role)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:           "usr-" + uuid.NewString()[:8],
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Phone:        req.Phone,
		SIPExtension: req.SIPExtension,
		IsActive:     true,
		Roles:        roles,
	}

	access, refresh, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := NewUserRepository(tx).Create(ctx, user); err != nil {
			return err
		}
		return s.saveTokens(ctx, tx, user, ClientMeta{}, access, refresh)
	})
	if err != nil {
		return nil, fmt.Errorf("registering user: %w", err)
	}

	s.logger.Info("user registered", "username", user.Username, "user_id", user.ID)
	s.emit(ctx, Event{Action: ActionRegister, Outcome: OutcomeSuccess, Username: user.Username, UserID: user.ID})
	return s.bundle(user, access, refresh.Value), nil
}

// ActiveSessions returns the user's currently valid tokens.
func (s *Service) ActiveSessions(ctx context.Context, userID string) ([]Token, error) {
	return s.tokens.ActiveTokensFor(ctx, userID)
}

// absentUserHash returns the hash Login verifies against when the username
// is unknown.
func (s *Service) absentUserHash() string {
	s.absentOnce.Do(func() {
		hash, err := s.hasher.Hash(absentUserPassword)
		if err != nil {
			s.logger.Warn("hashing absent-user password failed", "error", err)
			return
		}
		s.absent = hash
	})
	return s.absent
}

// validateEmail accepts a bare address only. Display-name forms such as
// "Alice <alice@example.com>" parse but are rejected.
func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEmail, err)
	}
	if addr.Address != email {
		return fmt.Errorf("%w: %q is not a bare address", ErrInvalidEmail, email)
	}
	return nil
}

// issuePair signs tokens before any transaction opens: the issuer reads
// lifetimes through the session settings, which may query the database.
func (s *Service) issuePair(ctx context.Context, user *User) (access, refresh IssuedToken, err error) {
	access, err = s.issuer.IssueAccess(ctx, user)
	if err != nil {
		return access, refresh, err
	}
	refresh, err = s.issuer.IssueRefresh(ctx, user)
	return access, refresh, err
}

func (s *Service) saveTokens(ctx context.Context, tx *sql.Tx, user *User, meta ClientMeta, issued ...IssuedToken) error {
	store := &TokenStore{db: tx, now: s.tokens.now}
	for _, t := range issued {
		if _, err := store.Save(ctx, t, user, meta); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) bundle(user *User, access IssuedToken, refreshToken string) *Bundle {
	authorities := EffectiveAuthorities(user)
	scope := EffectiveScope(user)
	return &Bundle{
		UserID:         user.ID,
		Username:       user.Username,
		Email:          user.Email,
		FullName:       user.FullName,
		SIPExtension:   user.SIPExtension,
		AccessToken:    access.Value,
		RefreshToken:   refreshToken,
		TokenType:      tokenTypeBearer,
		ExpiresIn:      int64(access.TTL().Seconds()),
		Roles:          authorities.Roles,
		Permissions:    authorities.Permissions,
		TenantID:       scope.TenantID,
		PortfolioID:    scope.PortfolioID,
		SubPortfolioID: scope.SubPortfolioID,
		Message:        bundleMessage,
	}
}

func (s *Service) emitLoginFailure(ctx context.Context, user *User, clientIP, reason string) {
	s.emit(ctx, Event{
		Action: ActionLogin, Outcome: OutcomeFailure,
		Username: user.Username, UserID: user.ID, ClientIP: clientIP,
		Details: map[string]any{"reason": reason},
	})
}

func (s *Service) emit(ctx context.Context, e Event) {
	if s.events == nil {
		return
	}
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	s.events.Record(ctx, e)
}
