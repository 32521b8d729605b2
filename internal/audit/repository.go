// Package audit persists authentication events to the audit_logs table
// and serves them back for review.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so created_at sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Outcome   string         `json:"outcome"`
	Username  string         `json:"username,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	ClientIP  string         `json:"client_ip,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter selects audit logs. Zero fields do not filter.
type Filter struct {
	Action   string
	Outcome  string
	Username string
	From     time.Time // inclusive
	To       time.Time // exclusive
	Limit    int       // DefaultLimit when zero, capped at MaxLimit
	Offset   int
}

// ListResult is one page of audit logs.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository stores and lists audit logs.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db querier
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db querier) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts entry, filling in the ID and CreatedAt when unset.
func (r *SQLiteRepository) Create(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details any
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
		details = string(b)
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, username, user_id, outcome, client_ip, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action,
		nullableString(entry.Username), nullableString(entry.UserID),
		entry.Outcome, nullableString(entry.ClientIP), details,
		entry.CreatedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// nullableString keeps empty optional columns NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// normalise clamps paging to [1, MaxLimit] and a non-negative offset.
func (f *Filter) normalise() {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	f.Offset = max(f.Offset, 0)
}

// where renders the filter as a parameterised WHERE clause, or "" when
// nothing is filtered.
func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.Outcome != "" {
		add("outcome = ?", f.Outcome)
	}
	if f.Username != "" {
		add("username = ?", f.Username)
	}
	if !f.From.IsZero() {
		add("created_at >= ?", f.From.UTC().Format(timeLayout))
	}
	if !f.To.IsZero() {
		add("created_at < ?", f.To.UTC().Format(timeLayout))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const selectAuditLogs = `SELECT id, action, username, user_id, outcome, client_ip, details, created_at FROM audit_logs`

// List returns the page of entries matching filter, newest first, with
// the total match count.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter.normalise()
	where, args := filter.where()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		selectAuditLogs+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		entry, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func scanAuditLog(rows *sql.Rows) (AuditLog, error) {
	var (
		e                                   AuditLog
		username, userID, clientIP, details sql.NullString
		createdAt                           string
	)
	if err := rows.Scan(&e.ID, &e.Action, &username, &userID, &e.Outcome, &clientIP, &details, &createdAt); err != nil {
		return e, fmt.Errorf("scanning audit log: %w", err)
	}
	e.Username, e.UserID, e.ClientIP = username.String, userID.String, clientIP.String

	// Unreadable details are dropped rather than failing the page.
	if details.String != "" {
		_ = json.Unmarshal([]byte(details.String), &e.Details) //nolint:errcheck // see above
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return e, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}
