package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultPurgeGraceDays is how long expired tokens are kept before purging.
const DefaultPurgeGraceDays = 30

const tokenColumns = `id, user_id, token_hash, kind, issued_at, expires_at, is_active,
	revoked, revoked_at, client_ip, user_agent, device`

// TokenStore is the ledger of issued tokens. Raw tokens are never stored;
// records are keyed by the SHA-256 hash of the signed string.
type TokenStore struct {
	db  DBTX
	now func() time.Time
}

// NewTokenStore creates a token store over a database or transaction.
func NewTokenStore(db DBTX) *TokenStore {
	return &TokenStore{db: db, now: time.Now}
}

// HashToken returns the SHA-256 hex digest of a raw token string.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Save records an issued token for user. The record expires with the token.
func (s *TokenStore) Save(ctx context.Context, issued IssuedToken, user *User, meta ClientMeta) (*Token, error) {
	t := &Token{
		ID:         "tok-" + uuid.NewString()[:8],
		UserID:     user.ID,
		TokenHash:  HashToken(issued.Value),
		Kind:       issued.Kind,
		IssuedAt:   issued.IssuedAt,
		ExpiresAt:  issued.ExpiresAt,
		IsActive:   true,
		ClientMeta: meta,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (id, user_id, token_hash, kind, issued_at, expires_at, is_active, revoked, client_ip, user_agent, device)
		 VALUES (?, ?, ?, ?, ?, ?, 1, 0, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, string(t.Kind),
		formatTime(t.IssuedAt), formatTime(t.ExpiresAt),
		nullString(meta.ClientIP), nullString(meta.UserAgent), nullString(meta.Device),
	)
	if err != nil {
		return nil, fmt.Errorf("saving %s token: %w", t.Kind, err)
	}
	return t, nil
}

// Get returns the record for raw, or ErrTokenNotFound.
func (s *TokenStore) Get(ctx context.Context, raw string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE token_hash = ?`, HashToken(raw))
	return scanTokenFrom(row)
}

// IsValid reports whether raw is recorded and currently valid.
// Unknown tokens are not valid and are not an error.
func (s *TokenStore) IsValid(ctx context.Context, raw string) (bool, error) {
	t, err := s.Get(ctx, raw)
	if errors.Is(err, ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.IsValid(s.now()), nil
}

// Revoke deactivates the token. Unknown or already revoked tokens are a no-op.
func (s *TokenStore) Revoke(ctx context.Context, raw string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tokens SET is_active = 0, revoked = 1, revoked_at = ?
		 WHERE token_hash = ? AND revoked = 0`,
		formatTime(s.now()), HashToken(raw),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every unrevoked token of the user and returns the count.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tokens SET is_active = 0, revoked = 1, revoked_at = ?
		 WHERE user_id = ? AND revoked = 0`,
		formatTime(s.now()), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("revoking tokens for user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// ActiveTokensFor returns the user's tokens that are valid now, newest first.
func (s *TokenStore) ActiveTokensFor(ctx context.Context, userID string) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens
		 WHERE user_id = ? AND is_active = 1 AND revoked = 0
		 ORDER BY issued_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	now := s.now()
	var tokens []Token
	for rows.Next() {
		t, err := scanTokenFrom(rows)
		if err != nil {
			return nil, err
		}
		if t.IsValid(now) {
			tokens = append(tokens, *t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}
	return tokens, nil
}

// PurgeExpired deletes tokens that expired more than graceDays ago.
func (s *TokenStore) PurgeExpired(ctx context.Context, graceDays int) (int64, error) {
	if graceDays < 0 {
		graceDays = 0
	}
	cutoff := s.now().Add(-time.Duration(graceDays) * 24 * time.Hour)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE expires_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purging expired tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func scanTokenFrom(s scanner) (*Token, error) {
	var t Token
	var kind, issuedAt, expiresAt string
	var isActive, revoked int
	var revokedAt, clientIP, userAgent, device sql.NullString

	err := s.Scan(&t.ID, &t.UserID, &t.TokenHash, &kind, &issuedAt, &expiresAt,
		&isActive, &revoked, &revokedAt, &clientIP, &userAgent, &device)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("scanning token: %w", err)
	}

	t.Kind = TokenKind(kind)
	t.IssuedAt = parseTime(issuedAt)
	t.ExpiresAt = parseTime(expiresAt)
	t.IsActive = isActive != 0
	t.Revoked = revoked != 0
	t.RevokedAt = parseNullTime(revokedAt)
	t.ClientIP = clientIP.String
	t.UserAgent = userAgent.String
	t.Device = device.String
	return &t, nil
}
