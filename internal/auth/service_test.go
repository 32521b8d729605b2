package auth

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func login(t *testing.T, svc *Service, username, password string) *Bundle {
	t.Helper()
	b, err := svc.Login(t.Context(), LoginRequest{
		Username:   username,
		Password:   password,
		ClientMeta: ClientMeta{ClientIP: "192.0.2.10", UserAgent: "test", Device: "ci"},
	})
	if err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return b
}

func TestService_LoginValidateLogout(t *testing.T) {
	db := testDB(t)
	svc, _, sink := testService(t, db)
	ctx := t.Context()
	alice := seedUser(t, db, "alice", "wonderland", RoleAgente)

	b := login(t, svc, "alice", "wonderland")

	if b.UserID != alice.ID || b.Username != "alice" || b.TokenType != "Bearer" {
		t.Errorf("bundle identity = %q/%q/%q", b.UserID, b.Username, b.TokenType)
	}
	if !slices.Equal(b.Roles, []string{"AGENTE"}) {
		t.Errorf("Roles = %v, want [AGENTE]", b.Roles)
	}
	if b.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", b.ExpiresIn)
	}
	if b.Message != "Authentication successful" {
		t.Errorf("Message = %q", b.Message)
	}
	if b.TenantID != nil || b.PortfolioID != nil || b.SubPortfolioID != nil {
		t.Error("AGENTE has no assignments, scope should be nil")
	}

	if !svc.Validate(ctx, b.AccessToken) {
		t.Fatal("Validate(access) = false right after login")
	}
	if !svc.Validate(ctx, b.RefreshToken) {
		t.Fatal("Validate(refresh) = false right after login")
	}

	sessions, err := svc.ActiveSessions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ActiveSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("ActiveSessions() = %d, want 2", len(sessions))
	}
	if sessions[0].ClientIP != "192.0.2.10" {
		t.Errorf("session ClientIP = %q, want 192.0.2.10", sessions[0].ClientIP)
	}

	if err := svc.Logout(ctx, b.AccessToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if svc.Validate(ctx, b.AccessToken) {
		t.Error("Validate(access) = true after logout")
	}
	if !svc.Validate(ctx, b.RefreshToken) {
		t.Error("Validate(refresh) = false after logout, refresh tokens survive logout")
	}

	// Logging out twice is harmless.
	if err := svc.Logout(ctx, b.AccessToken); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}

	if sink.count(ActionLogin, OutcomeSuccess) != 1 || sink.count(ActionLogout, OutcomeSuccess) != 2 {
		t.Errorf("events = %+v", sink.events)
	}
}

func TestService_LoginStampsLastAccess(t *testing.T) {
	db := testDB(t)
	svc, clock, _ := testService(t, db)
	user := seedUser(t, db, "stamp", "password123")

	login(t, svc, "stamp", "password123")

	got, err := NewUserRepository(db).GetByID(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.LastAccessAt == nil || !got.LastAccessAt.Equal(clock.Now()) {
		t.Errorf("LastAccessAt = %v, want %v", got.LastAccessAt, clock.Now())
	}
}

func TestService_LoginUnknownUser(t *testing.T) {
	db := testDB(t)
	svc, _, sink := testService(t, db)

	_, err := svc.Login(t.Context(), LoginRequest{Username: "ghost", Password: "whatever"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
	}
	if sink.count(ActionLogin, OutcomeFailure) != 1 {
		t.Error("failed login should emit an event")
	}

	// The unknown user was still checked against a hash of the live cost.
	p, err := parsePHC(svc.absent)
	if err != nil {
		t.Fatalf("absent-user hash %q: %v", svc.absent, err)
	}
	if p.time != fastHasher.Time || p.memory != fastHasher.Memory || p.threads != fastHasher.Threads {
		t.Errorf("absent-user hash cost = t=%d m=%d p=%d, want the hasher's", p.time, p.memory, p.threads)
	}

	first := svc.absent
	if _, err := svc.Login(t.Context(), LoginRequest{Username: "phantom", Password: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("second Login() error = %v, want ErrInvalidCredentials", err)
	}
	if svc.absent != first {
		t.Error("absent-user hash should be computed once")
	}
}

func TestService_Lockout(t *testing.T) {
	db := testDB(t)
	svc, clock, sink := testService(t, db)
	ctx := t.Context()
	user := seedUser(t, db, "mallory", "right-password")

	for i := 1; i <= DefaultLockoutThreshold; i++ {
		_, err := svc.Login(ctx, LoginRequest{Username: "mallory", Password: "wrong"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d error = %v, want ErrInvalidCredentials", i, err)
		}
	}
	if sink.count(ActionLockout, OutcomeSuccess) != 1 {
		t.Errorf("lockout events = %d, want 1", sink.count(ActionLockout, OutcomeSuccess))
	}

	// The right password is refused while locked and no failure is consumed.
	_, err := svc.Login(ctx, LoginRequest{Username: "mallory", Password: "right-password"})
	var locked *AccountLockedError
	if !errors.As(err, &locked) || !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("Login() while locked error = %v, want AccountLockedError", err)
	}
	if want := clock.Now().Add(30 * time.Minute); !locked.Until.Equal(want) {
		t.Errorf("Until = %v, want %v", locked.Until, want)
	}

	stored, err := NewUserRepository(db).GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.FailedAttempts != DefaultLockoutThreshold {
		t.Errorf("FailedAttempts = %d, want %d", stored.FailedAttempts, DefaultLockoutThreshold)
	}

	clock.Advance(31 * time.Minute)
	login(t, svc, "mallory", "right-password")

	stored, err = NewUserRepository(db).GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.FailedAttempts != 0 || stored.LockedUntil != nil {
		t.Errorf("after success attempts=%d until=%v, want reset", stored.FailedAttempts, stored.LockedUntil)
	}
}

func TestService_LoginInactive(t *testing.T) {
	db := testDB(t)
	svc, _, _ := testService(t, db)
	ctx := t.Context()
	user := seedUser(t, db, "sleepy", "password123")

	if _, err := db.ExecContext(ctx, `UPDATE users SET is_active = 0 WHERE id = ?`, user.ID); err != nil {
		t.Fatalf("deactivating user: %v", err)
	}

	_, err := svc.Login(ctx, LoginRequest{Username: "sleepy", Password: "password123"})
	if !errors.Is(err, ErrUserInactive) {
		t.Errorf("Login() error = %v, want ErrUserInactive", err)
	}
	stored, err := NewUserRepository(db).GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.FailedAttempts != 0 {
		t.Errorf("inactive login counted a failure: %d", stored.FailedAttempts)
	}
}

func TestService_RefreshKeepsRefreshToken(t *testing.T) {
	db := testDB(t)
	svc, clock, _ := testService(t, db)
	ctx := t.Context()
	seedUser(t, db, "bob", "password123", RoleAdmin)

	first := login(t, svc, "bob", "password123")
	clock.Advance(time.Second)

	refreshed, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.RefreshToken != first.RefreshToken {
		t.Error("Refresh() should return the original refresh token")
	}
	if refreshed.AccessToken == first.AccessToken {
		t.Error("Refresh() should issue a new access token")
	}
	if !svc.Validate(ctx, refreshed.AccessToken) || !svc.Validate(ctx, first.AccessToken) {
		t.Error("both access tokens should remain valid")
	}
	if !slices.Contains(refreshed.Roles, "ADMIN") {
		t.Errorf("Roles = %v, want ADMIN", refreshed.Roles)
	}

	// The refresh token can be used again.
	if _, err := svc.Refresh(ctx, first.RefreshToken); err != nil {
		t.Errorf("second Refresh() error = %v", err)
	}
}

func TestService_RefreshFailures(t *testing.T) {
	db := testDB(t)
	svc, _, _ := testService(t, db)
	ctx := t.Context()
	user := seedUser(t, db, "frank", "password123")
	b := login(t, svc, "frank", "password123")

	if _, err := svc.Refresh(ctx, "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Refresh(garbage) error = %v, want ErrTokenInvalid", err)
	}
	if _, err := svc.Refresh(ctx, b.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Refresh(access) error = %v, want ErrTokenInvalid", err)
	}

	// A correctly signed refresh token that was never stored.
	unstored, err := svc.issuer.IssueRefresh(ctx, user)
	if err != nil {
		t.Fatalf("IssueRefresh() error = %v", err)
	}
	if _, err := svc.Refresh(ctx, unstored.Value); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Refresh(unstored) error = %v, want ErrTokenNotFound", err)
	}

	if err := svc.LogoutAll(ctx, user.ID); err != nil {
		t.Fatalf("LogoutAll() error = %v", err)
	}
	if _, err := svc.Refresh(ctx, b.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Refresh(revoked) error = %v, want ErrTokenRevoked", err)
	}
}

func TestService_RefreshExpired(t *testing.T) {
	db := testDB(t)
	svc, clock, _ := testService(t, db)
	seedUser(t, db, "gina", "password123")
	b := login(t, svc, "gina", "password123")

	clock.Advance(8 * 24 * time.Hour)

	if _, err := svc.Refresh(t.Context(), b.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Refresh(expired) error = %v, want ErrTokenExpired", err)
	}
	if svc.Validate(t.Context(), b.AccessToken) {
		t.Error("Validate() should be false for an expired access token")
	}
}

func TestService_LogoutAll(t *testing.T) {
	db := testDB(t)
	svc, _, sink := testService(t, db)
	ctx := t.Context()
	user := seedUser(t, db, "henry", "password123")

	a := login(t, svc, "henry", "password123")
	b := login(t, svc, "henry", "password123")

	if err := svc.LogoutAll(ctx, user.ID); err != nil {
		t.Fatalf("LogoutAll() error = %v", err)
	}
	for _, tok := range []string{a.AccessToken, a.RefreshToken, b.AccessToken, b.RefreshToken} {
		if svc.Validate(ctx, tok) {
			t.Error("token still valid after LogoutAll()")
		}
	}
	if sink.count(ActionLogoutAll, OutcomeSuccess) != 1 {
		t.Error("LogoutAll() should emit an event")
	}
}

func TestService_Authenticate(t *testing.T) {
	db := testDB(t)
	svc, _, _ := testService(t, db)
	ctx := t.Context()
	seedUser(t, db, "ivy", "password123", RoleAdmin)
	b := login(t, svc, "ivy", "password123")

	claims, err := svc.Authenticate(ctx, b.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if claims.Subject != "ivy" || !HasRole(claims.Roles, RoleAdmin) {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := svc.Authenticate(ctx, b.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Authenticate(refresh) error = %v, want ErrTokenInvalid", err)
	}

	if err := svc.Logout(ctx, b.AccessToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.Authenticate(ctx, b.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Authenticate(revoked) error = %v, want ErrTokenRevoked", err)
	}
}

func TestService_CurrentUser(t *testing.T) {
	db := testDB(t)
	svc, _, _ := testService(t, db)
	seedRole(t, db, "LEAD", []string{"PAGOS_APROBAR"},
		RoleAssignment{Kind: ScopePortfolio, TenantID: 3, PortfolioID: int64p(30)})
	seedUser(t, db, "jack", "password123", "LEAD")

	p, err := svc.CurrentUser(t.Context(), "jack")
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if p.Username != "jack" || len(p.RoleIDs) != 1 {
		t.Errorf("profile = %+v", p)
	}
	if !slices.Equal(p.Permissions, []string{"PAGOS_APROBAR"}) {
		t.Errorf("Permissions = %v", p.Permissions)
	}
	if p.TenantID == nil || *p.TenantID != 3 || p.PortfolioID == nil || *p.PortfolioID != 30 {
		t.Errorf("scope = %+v", p.Scope)
	}

	if _, err := svc.CurrentUser(t.Context(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("CurrentUser(nobody) error = %v, want ErrUserNotFound", err)
	}
}

func TestService_Register(t *testing.T) {
	db := testDB(t)
	svc, _, sink := testService(t, db)
	ctx := t.Context()

	b, err := svc.Register(ctx, RegisterRequest{
		Username: "newbie",
		Email:    "newbie@example.com",
		Password: "long-enough",
		FullName: "New Bie",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !slices.Equal(b.Roles, []string{"AGENTE"}) {
		t.Errorf("Roles = %v, want default AGENTE", b.Roles)
	}
	if !svc.Validate(ctx, b.AccessToken) || !svc.Validate(ctx, b.RefreshToken) {
		t.Error("registration tokens should be valid")
	}

	sessions, err := svc.ActiveSessions(ctx, b.UserID)
	if err != nil {
		t.Fatalf("ActiveSessions() error = %v", err)
	}
	for _, s := range sessions {
		if s.ClientIP != "" || s.UserAgent != "" || s.Device != "" {
			t.Errorf("registration token carries client meta: %+v", s.ClientMeta)
		}
	}

	// The new account can log in.
	login(t, svc, "newbie", "long-enough")

	if sink.count(ActionRegister, OutcomeSuccess) != 1 {
		t.Error("Register() should emit an event")
	}
}

func TestService_RegisterRejections(t *testing.T) {
	db := testDB(t)
	svc, _, _ := testService(t, db)
	seedUser(t, db, "taken", "password123")

	tests := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"duplicate username", RegisterRequest{Username: "taken", Email: "fresh@example.com", Password: "password123"}, ErrDuplicateUsername},
		{"duplicate email", RegisterRequest{Username: "fresh", Email: "taken@example.com", Password: "password123"}, ErrDuplicateEmail},
		{"unknown role", RegisterRequest{Username: "fresh", Email: "fresh@example.com", Password: "password123", Roles: []string{"WIZARD"}}, ErrRoleNotFound},
		{"bad username", RegisterRequest{Username: "has space", Email: "fresh@example.com", Password: "password123"}, ErrInvalidUsername},
		{"bad email", RegisterRequest{Username: "fresh", Email: "not-an-email", Password: "password123"}, ErrInvalidEmail},
		{"display name email", RegisterRequest{Username: "fresh", Email: "Fresh <fresh@example.com>", Password: "password123"}, ErrInvalidEmail},
		{"padded email", RegisterRequest{Username: "fresh", Email: " fresh@example.com", Password: "password123"}, ErrInvalidEmail},
		{"short password", RegisterRequest{Username: "fresh", Email: "fresh@example.com", Password: "short"}, ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(t.Context(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}

	// Nothing from the rejected attempts was persisted.
	exists, err := NewUserRepository(db).ExistsByUsername(t.Context(), "fresh")
	if err != nil || exists {
		t.Errorf("ExistsByUsername(fresh) = %v, %v, want false", exists, err)
	}
}

func TestNewService_RequiresDeps(t *testing.T) {
	if _, err := NewService(Deps{}); err == nil {
		t.Error("NewService() without DB should fail")
	}
	db := testDB(t)
	if _, err := NewService(Deps{DB: db}); err == nil {
		t.Error("NewService() without issuer should fail")
	}
}
