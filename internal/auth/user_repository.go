package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, username, email, password_hash, full_name, phone, sip_extension,
	is_active, email_verified, failed_attempts, locked_until, last_access_at, created_at, updated_at`

// UserRepository persists accounts. Reads load roles eagerly with their
// permissions and assignments, roles ordered by name.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a SQLite-backed user repository over a
// database or transaction.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new account and links user.Roles by ID. The ID is
// generated if empty.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash,
		nullString(user.FullName), nullString(user.Phone), nullString(user.SIPExtension),
		boolToInt(user.IsActive), boolToInt(user.EmailVerified), user.FailedAttempts,
		formatNullTime(user.LockedUntil), formatNullTime(user.LastAccessAt),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		switch {
		case uniqueViolationOn(err, "users.username"):
			return ErrDuplicateUsername
		case uniqueViolationOn(err, "users.email"):
			return ErrDuplicateEmail
		}
		return fmt.Errorf("creating user: %w", err)
	}

	for _, role := range user.Roles {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			user.ID, role.ID,
		); err != nil {
			return fmt.Errorf("linking role %s: %w", role.Name, err)
		}
	}
	return nil
}

// GetByID returns a user with roles, or ErrUserNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByUsername returns a user with roles, or ErrUserNotFound.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// GetByEmail returns a user with roles, or ErrUserNotFound.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// ExistsByUsername reports whether the username is taken.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username)
}

// ExistsByEmail reports whether the email is registered.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email)
}

// UpdateLoginState persists the failure counter, lock and last access.
func (r *UserRepository) UpdateLoginState(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET failed_attempts = ?, locked_until = ?, last_access_at = ?, updated_at = ?
		 WHERE id = ?`,
		user.FailedAttempts, formatNullTime(user.LockedUntil), formatNullTime(user.LastAccessAt),
		formatTime(now), user.ID,
	)
	if err != nil {
		return fmt.Errorf("updating login state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	user.UpdatedAt = now
	return nil
}

// List returns every account ordered by creation, each with its roles.
func (r *UserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			rows.Close() //nolint:errcheck // scan error takes precedence
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck // iteration error takes precedence
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	rows.Close() //nolint:errcheck // drained before loading roles on the same connection

	for i := range users {
		if err := r.loadRoles(ctx, &users[i]); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// Update rewrites the account's profile, active flag and lock state, and
// replaces its role links with user.Roles. The password hash is left alone.
// Run it inside a transaction so the role swap is atomic.
func (r *UserRepository) Update(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, full_name = ?, phone = ?, sip_extension = ?,
		 is_active = ?, failed_attempts = ?, locked_until = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username, user.Email,
		nullString(user.FullName), nullString(user.Phone), nullString(user.SIPExtension),
		boolToInt(user.IsActive), user.FailedAttempts, formatNullTime(user.LockedUntil),
		formatTime(now), user.ID,
	)
	if err != nil {
		switch {
		case uniqueViolationOn(err, "users.username"):
			return ErrDuplicateUsername
		case uniqueViolationOn(err, "users.email"):
			return ErrDuplicateEmail
		}
		return fmt.Errorf("updating user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, user.ID); err != nil {
		return fmt.Errorf("clearing user roles: %w", err)
	}
	for _, role := range user.Roles {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			user.ID, role.ID,
		); err != nil {
			return fmt.Errorf("linking role %s: %w", role.Name, err)
		}
	}
	user.UpdatedAt = now
	return nil
}

// Delete removes an account. Its role links and tokens cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) get(ctx context.Context, query string, args ...any) (*User, error) {
	user, err := scanUserFrom(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if err := r.loadRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) loadRoles(ctx context.Context, user *User) error {
	roles, err := queryRoles(ctx, r.db,
		`SELECT `+roleColumns+` FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ?
		 ORDER BY r.name`, user.ID)
	if err != nil {
		return fmt.Errorf("loading roles for user: %w", err)
	}
	user.Roles = roles
	return nil
}

func (r *UserRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking user existence: %w", err)
	}
	return exists == 1, nil
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var fullName, phone, sip, lockedUntil, lastAccess sql.NullString
	var isActive, emailVerified int
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&fullName, &phone, &sip, &isActive, &emailVerified, &u.FailedAttempts,
		&lockedUntil, &lastAccess, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.FullName = fullName.String
	u.Phone = phone.String
	u.SIPExtension = sip.String
	u.IsActive = isActive != 0
	u.EmailVerified = emailVerified != 0
	u.LockedUntil = parseNullTime(lockedUntil)
	u.LastAccessAt = parseNullTime(lastAccess)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}
