package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidUsername    = errors.New("invalid username format")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password is too short")

	ErrTokenInvalid  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenRevoked  = errors.New("token revoked")
	ErrTokenNotFound = errors.New("token not found")

	ErrRoleNotFound       = errors.New("role not found")
	ErrDuplicateRoleName  = errors.New("role name already exists")
	ErrInvalidAssignment  = errors.New("invalid role assignment")
	ErrPermissionNotFound = errors.New("permission not found")
)

// AccountLockedError reports a login attempt against a locked account.
// It matches ErrAccountLocked with errors.Is.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Is reports whether target is ErrAccountLocked.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
