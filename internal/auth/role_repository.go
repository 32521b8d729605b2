package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TxDB is a database that can also run a unit of work.
// *database.DB satisfies it.
type TxDB interface {
	DBTX
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

const roleColumns = `r.id, r.name, r.description, r.is_active, r.created_at, r.updated_at`

// RoleRepository manages roles with their permission links and assignments.
type RoleRepository struct {
	db TxDB
}

// NewRoleRepository creates a SQLite-backed role repository.
func NewRoleRepository(db TxDB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create inserts a role. Only the IDs of role.Permissions are used; the
// role is reloaded afterwards so the links come back fully populated.
func (r *RoleRepository) Create(ctx context.Context, role *Role) error {
	if err := validateAssignments(role.Assignments); err != nil {
		return err
	}
	if role.ID == "" {
		role.ID = "rol-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO roles (id, name, description, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			role.ID, role.Name, nullString(role.Description), boolToInt(role.IsActive),
			formatTime(now), formatTime(now),
		)
		if err != nil {
			if uniqueViolationOn(err, "roles.name") {
				return ErrDuplicateRoleName
			}
			return fmt.Errorf("creating role: %w", err)
		}
		return replaceRoleLinks(ctx, tx, role, now)
	})
	if err != nil {
		return err
	}
	return r.reload(ctx, role)
}

// Update rewrites the role fields, permission links and assignments in a
// single transaction.
func (r *RoleRepository) Update(ctx context.Context, role *Role) error {
	if err := validateAssignments(role.Assignments); err != nil {
		return err
	}
	now := time.Now().UTC()

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE roles SET name = ?, description = ?, is_active = ?, updated_at = ? WHERE id = ?`,
			role.Name, nullString(role.Description), boolToInt(role.IsActive), formatTime(now), role.ID,
		)
		if err != nil {
			if uniqueViolationOn(err, "roles.name") {
				return ErrDuplicateRoleName
			}
			return fmt.Errorf("updating role: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // SQLite always reports rows affected
			return ErrRoleNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, role.ID); err != nil {
			return fmt.Errorf("clearing role permissions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_assignments WHERE role_id = ?`, role.ID); err != nil {
			return fmt.Errorf("clearing role assignments: %w", err)
		}
		return replaceRoleLinks(ctx, tx, role, now)
	})
	if err != nil {
		return err
	}
	return r.reload(ctx, role)
}

// Delete removes a role. Its assignments and links cascade.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// GetByID returns a role with its permissions and assignments.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*Role, error) {
	return getRole(ctx, r.db, `SELECT `+roleColumns+` FROM roles r WHERE r.id = ?`, id)
}

// GetByName returns a role by name with its permissions and assignments.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*Role, error) {
	return getRole(ctx, r.db, `SELECT `+roleColumns+` FROM roles r WHERE r.name = ?`, name)
}

// List returns every role ordered by name.
func (r *RoleRepository) List(ctx context.Context) ([]Role, error) {
	return queryRoles(ctx, r.db, `SELECT `+roleColumns+` FROM roles r ORDER BY r.name`)
}

func (r *RoleRepository) reload(ctx context.Context, role *Role) error {
	fresh, err := r.GetByID(ctx, role.ID)
	if err != nil {
		return err
	}
	*role = *fresh
	return nil
}

func validateAssignments(assignments []RoleAssignment) error {
	for _, a := range assignments {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// replaceRoleLinks inserts the permission links and assignments of role.
// Assignment timestamps are staggered so their creation order is preserved.
func replaceRoleLinks(ctx context.Context, tx *sql.Tx, role *Role, now time.Time) error {
	for _, p := range role.Permissions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)
			 ON CONFLICT DO NOTHING`, role.ID, p.ID)
		if err != nil {
			if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
				return fmt.Errorf("%w: %s", ErrPermissionNotFound, p.ID)
			}
			return fmt.Errorf("linking permission: %w", err)
		}
	}

	for i := range role.Assignments {
		a := &role.Assignments[i]
		a.ID = "asg-" + uuid.NewString()[:8]
		a.RoleID = role.ID
		a.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO role_assignments (id, role_id, scope_kind, tenant_id, portfolio_id, sub_portfolio_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.RoleID, string(a.Kind), a.TenantID,
			nullInt64(a.PortfolioID), nullInt64(a.SubPortfolioID), formatTime(a.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("creating role assignment: %w", err)
		}
	}
	return nil
}

func getRole(ctx context.Context, db DBTX, query string, args ...any) (*Role, error) {
	role, err := scanRoleFrom(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if err := hydrateRole(ctx, db, role); err != nil {
		return nil, err
	}
	return role, nil
}

// queryRoles runs a role query and loads the links of every result.
// Rows are drained before hydrating so a single connection suffices.
func queryRoles(ctx context.Context, db DBTX, query string, args ...any) ([]Role, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}

	roles := make([]Role, 0)
	for rows.Next() {
		role, err := scanRoleFrom(rows)
		if err != nil {
			rows.Close() //nolint:errcheck // scan error takes precedence
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck // iteration error takes precedence
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	rows.Close() //nolint:errcheck // fully drained

	for i := range roles {
		if err := hydrateRole(ctx, db, &roles[i]); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// hydrateRole loads the permissions and assignments of role.
func hydrateRole(ctx context.Context, db DBTX, role *Role) error {
	perms, err := permissionsForRole(ctx, db, role.ID)
	if err != nil {
		return err
	}
	role.Permissions = perms

	rows, err := db.QueryContext(ctx,
		`SELECT id, role_id, scope_kind, tenant_id, portfolio_id, sub_portfolio_id, created_at
		 FROM role_assignments WHERE role_id = ? ORDER BY created_at, id`, role.ID)
	if err != nil {
		return fmt.Errorf("loading role assignments: %w", err)
	}
	defer rows.Close()

	role.Assignments = make([]RoleAssignment, 0)
	for rows.Next() {
		var a RoleAssignment
		var kind, createdAt string
		var portfolio, subPortfolio sql.NullInt64
		if err := rows.Scan(&a.ID, &a.RoleID, &kind, &a.TenantID, &portfolio, &subPortfolio, &createdAt); err != nil {
			return fmt.Errorf("scanning role assignment: %w", err)
		}
		a.Kind = ScopeKind(kind)
		a.PortfolioID = int64Ptr(portfolio)
		a.SubPortfolioID = int64Ptr(subPortfolio)
		a.CreatedAt = parseTime(createdAt)
		role.Assignments = append(role.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating role assignments: %w", err)
	}
	return nil
}

func scanRoleFrom(s scanner) (*Role, error) {
	var role Role
	var description sql.NullString
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&role.ID, &role.Name, &description, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}
	role.Description = description.String
	role.IsActive = isActive != 0
	role.CreatedAt = parseTime(createdAt)
	role.UpdatedAt = parseTime(updatedAt)
	return &role, nil
}
