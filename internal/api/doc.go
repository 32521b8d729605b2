// Package api implements the HTTP REST API of the auth core.
//
// This package provides:
//   - Public endpoints for registration, login, token refresh and validation
//   - Bearer-protected endpoints for sessions, roles, permissions and session settings
//   - Admin-only endpoints that mutate roles and session settings
//   - Middleware stack (request ID, metrics, logging, recovery, CORS, body limit)
//   - Per-client-IP rate limiting on credential endpoints
//
// # Security
//
// A bearer token is accepted only if its signature and expiry check out and
// the token store still records it as valid. Refresh tokens are never
// accepted as bearer credentials. Admin routes additionally require the
// ADMIN role in the token claims.
//
// Domain errors map onto {status, code, message} bodies. Unexpected errors
// are logged and reported as a generic 500 so internals never leak.
package api
