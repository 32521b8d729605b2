// Package auth provides authentication and authorisation for the auth core.
//
// It covers:
//   - Argon2id password hashing
//   - account lockout after repeated failures (5 failures lock for 30 minutes)
//   - HS256 access and refresh tokens whose lifetimes come from session config
//   - a token ledger keyed by SHA-256 hash, so any token can be revoked
//   - effective authorities (roles, permissions) and organisational scope
//
// Access tokens carry a snapshot of the user's roles and permissions at
// issuance. Changing a role does not affect tokens already issued until
// they expire or are revoked.
//
// Refresh does not rotate: a refresh token stays valid until it expires or
// every session of the user is revoked with LogoutAll.
//
// SQLite connections are limited to one, so the Service signs tokens and
// reads configuration before it opens a transaction. Inside the
// transaction every statement goes through the *sql.Tx.
package auth
