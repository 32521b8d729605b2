package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const permissionColumns = `p.id, p.code, p.name, p.description, p.category, p.display_order, p.is_active, p.created_at`

// PermissionRepository reads the permission catalogue.
type PermissionRepository struct {
	db DBTX
}

// NewPermissionRepository creates a SQLite-backed permission repository.
func NewPermissionRepository(db DBTX) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// Create inserts a permission. Used by seeding and tests.
func (r *PermissionRepository) Create(ctx context.Context, p *Permission) error {
	if p.ID == "" {
		p.ID = "prm-" + strings.ToLower(strings.ReplaceAll(p.Code, "_", "-"))
	}
	p.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (id, code, name, description, category, display_order, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, p.Name, nullString(p.Description), p.Category, p.DisplayOrder,
		boolToInt(p.IsActive), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating permission %s: %w", p.Code, err)
	}
	return nil
}

// List returns every permission ordered by category then display order.
func (r *PermissionRepository) List(ctx context.Context) ([]Permission, error) {
	return r.query(ctx,
		`SELECT `+permissionColumns+` FROM permissions p
		 ORDER BY p.category, p.display_order, p.code`)
}

// ListByCategory returns the permissions of one category in display order.
func (r *PermissionRepository) ListByCategory(ctx context.Context, category string) ([]Permission, error) {
	return r.query(ctx,
		`SELECT `+permissionColumns+` FROM permissions p
		 WHERE p.category = ? ORDER BY p.display_order, p.code`, category)
}

// Grouped returns the permissions keyed by category.
func (r *PermissionRepository) Grouped(ctx context.Context) (map[string][]Permission, error) {
	perms, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Permission)
	for _, p := range perms {
		grouped[p.Category] = append(grouped[p.Category], p)
	}
	return grouped, nil
}

// GetByCode returns the permission with code, or ErrPermissionNotFound.
func (r *PermissionRepository) GetByCode(ctx context.Context, code string) (*Permission, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions p WHERE p.code = ?`, code)
	p, err := scanPermissionFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPermissionNotFound
	}
	return p, err
}

func (r *PermissionRepository) query(ctx context.Context, query string, args ...any) ([]Permission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// permissionsForRole loads the permissions linked to a role.
func permissionsForRole(ctx context.Context, db DBTX, roleID string) ([]Permission, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = ?
		 ORDER BY p.category, p.display_order, p.code`, roleID)
	if err != nil {
		return nil, fmt.Errorf("loading role permissions: %w", err)
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows *sql.Rows) ([]Permission, error) {
	perms := make([]Permission, 0)
	for rows.Next() {
		p, err := scanPermissionFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	return perms, nil
}

// scanPermissionFrom returns sql.ErrNoRows unwrapped so callers can map it.
func scanPermissionFrom(s scanner) (*Permission, error) {
	var p Permission
	var description sql.NullString
	var isActive int
	var createdAt string

	err := s.Scan(&p.ID, &p.Code, &p.Name, &description, &p.Category,
		&p.DisplayOrder, &isActive, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.IsActive = isActive != 0
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}
