package sessionconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Store.Get when no active row exists for a key.
var ErrNotFound = errors.New("session config entry not found")

// Entry is a single session configuration row.
type Entry struct {
	Key         string     `json:"key"`
	Value       int        `json:"value"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Store persists session configuration rows.
type Store interface {
	// Get returns the active row for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Upsert sets the value of key. The description is only used when the
	// row is created.
	Upsert(ctx context.Context, key string, value int, description string) error

	// InsertIfMissing creates the row for key unless one already exists.
	InsertIfMissing(ctx context.Context, key string, value int, description string) error

	// List returns every row ordered by key.
	List(ctx context.Context) ([]Entry, error)
}

// querier is the subset of *sql.DB and *sql.Tx used by SQLiteStore.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on the session_config table.
type SQLiteStore struct {
	db querier
}

// NewSQLiteStore creates a SQLite-backed store.
func NewSQLiteStore(db querier) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the active row for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, value, description, is_active, updated_at
		 FROM session_config WHERE key = ? AND is_active = 1`, key)

	e, err := scanEntryFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session config %s: %w", key, err)
	}
	return e, nil
}

// Upsert sets the value of key, creating the row if needed.
func (s *SQLiteStore) Upsert(ctx context.Context, key string, value int, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_config (key, value, description, is_active, updated_at)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, description, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing session config %s: %w", key, err)
	}
	return nil
}

// InsertIfMissing creates the row for key unless it exists.
func (s *SQLiteStore) InsertIfMissing(ctx context.Context, key string, value int, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_config (key, value, description, is_active, updated_at)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(key) DO NOTHING`,
		key, value, description, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("initialising session config %s: %w", key, err)
	}
	return nil
}

// List returns every row ordered by key.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, description, is_active, updated_at FROM session_config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing session config: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntryFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session config: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session config: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntryFrom(s scanner) (*Entry, error) {
	var e Entry
	var description sql.NullString
	var isActive int
	var updatedAt string

	if err := s.Scan(&e.Key, &e.Value, &description, &isActive, &updatedAt); err != nil {
		return nil, err
	}
	e.Description = description.String
	e.IsActive = isActive != 0
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		e.UpdatedAt = &t
	}
	return &e, nil
}
