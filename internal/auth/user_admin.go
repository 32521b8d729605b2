package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"slices"

	"github.com/google/uuid"
)

// Generated passwords for administrator-created accounts.
const (
	generatedPasswordLength   = 12
	generatedPasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%&*"

	// DefaultEmailDomain completes the email of an account created without one.
	DefaultEmailDomain = "cashi.com"
)

// NewUser describes an account created by an administrator. The password
// is generated. A nil IsActive means active.
type NewUser struct {
	Username     string
	Email        string
	FullName     string
	Phone        string
	SIPExtension string
	IsActive     *bool
	RoleIDs      []string
}

// UserUpdate is a partial change to an account. Nil fields are left as
// they are. A non-nil RoleIDs replaces every role, so an empty slice
// removes them all. Unlock clears the failure counter and any lock.
type UserUpdate struct {
	Username     *string
	Email        *string
	FullName     *string
	Phone        *string
	SIPExtension *string
	IsActive     *bool
	RoleIDs      []string
	Unlock       bool
}

// CreatedUser is a new account with its one-time generated password.
type CreatedUser struct {
	User              *User
	GeneratedPassword string
}

// ListUsers returns every account with its roles.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}

// GetUser returns one account, or ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// CreateUser creates an account with a generated password. A missing email
// becomes username@DefaultEmailDomain. actor names the administrator for
// the audit trail.
func (s *Service) CreateUser(ctx context.Context, req NewUser, actor string) (*CreatedUser, error) {
	if !IsValidUsername(req.Username) {
		return nil, ErrInvalidUsername
	}
	email := req.Email
	if email == "" {
		email = req.Username + "@" + DefaultEmailDomain
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	roles, err := s.rolesByID(ctx, req.RoleIDs)
	if err != nil {
		return nil, err
	}

	password, err := generatePassword()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:           "usr-" + uuid.NewString()[:8],
		Username:     req.Username,
		Email:        email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Phone:        req.Phone,
		SIPExtension: req.SIPExtension,
		IsActive:     req.IsActive == nil || *req.IsActive,
		Roles:        roles,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", "username", user.Username, "user_id", user.ID, "by", actor)
	s.emit(ctx, Event{
		Action: ActionUserCreate, Outcome: OutcomeSuccess,
		Username: user.Username, UserID: user.ID,
		Details: map[string]any{"by": actor, "roles": roleNames(roles)},
	})
	return &CreatedUser{User: user, GeneratedPassword: password}, nil
}

// UpdateUser applies upd to the account with id. Deactivating an account
// revokes all of its tokens.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate, actor string) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	wasActive := user.IsActive

	if upd.Username != nil {
		if !IsValidUsername(*upd.Username) {
			return nil, ErrInvalidUsername
		}
		user.Username = *upd.Username
	}
	if upd.Email != nil {
		if err := validateEmail(*upd.Email); err != nil {
			return nil, err
		}
		user.Email = *upd.Email
	}
	if upd.FullName != nil {
		user.FullName = *upd.FullName
	}
	if upd.Phone != nil {
		user.Phone = *upd.Phone
	}
	if upd.SIPExtension != nil {
		user.SIPExtension = *upd.SIPExtension
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	if upd.RoleIDs != nil {
		roles, err := s.rolesByID(ctx, upd.RoleIDs)
		if err != nil {
			return nil, err
		}
		user.Roles = roles
	}
	if upd.Unlock {
		s.policy.OnSuccess(user)
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := NewUserRepository(tx).Update(ctx, user); err != nil {
			return err
		}
		if wasActive && !user.IsActive {
			_, err := (&TokenStore{db: tx, now: s.tokens.now}).RevokeAllForUser(ctx, user.ID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated", "username", user.Username, "user_id", user.ID, "by", actor)
	s.emit(ctx, Event{
		Action: ActionUserUpdate, Outcome: OutcomeSuccess,
		Username: user.Username, UserID: user.ID,
		Details: map[string]any{
			"by":          actor,
			"is_active":   user.IsActive,
			"unlocked":    upd.Unlock,
			"roles":       roleNames(user.Roles),
			"deactivated": wasActive && !user.IsActive,
		},
	})
	return user, nil
}

// DeleteUser removes the account with id. Its tokens go with it.
func (s *Service) DeleteUser(ctx context.Context, id, actor string) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("user deleted", "username", user.Username, "user_id", id, "by", actor)
	s.emit(ctx, Event{
		Action: ActionUserDelete, Outcome: OutcomeSuccess,
		Username: user.Username, UserID: id,
		Details: map[string]any{"by": actor},
	})
	return nil
}

// rolesByID resolves role IDs, dropping duplicates. An unknown ID is
// ErrRoleNotFound naming it.
func (s *Service) rolesByID(ctx context.Context, ids []string) ([]Role, error) {
	roles := make([]Role, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		role, err := s.roles.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, id)
		}
		roles = append(roles, *role)
	}
	return roles, nil
}

func roleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	slices.Sort(names)
	return names
}

// generatePassword draws generatedPasswordLength characters uniformly from
// generatedPasswordAlphabet.
func generatePassword() (string, error) {
	limit := big.NewInt(int64(len(generatedPasswordAlphabet)))
	b := make([]byte, generatedPasswordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		b[i] = generatedPasswordAlphabet[n.Int64()]
	}
	return string(b), nil
}
