package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cashi/auth-core/internal/auth"
	"github.com/cashi/auth-core/internal/sessionconfig"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeForbidden          = "forbidden"
	ErrCodeConflict           = "conflict"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodeLocked             = "account_locked"
	ErrCodeInactive           = "account_inactive"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeTokenExpired       = "token_expired"
	ErrCodeTokenInvalid       = "token_invalid"
	ErrCodeTooManyRequests    = "too_many_requests"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps an error from the auth or session config layer onto
// an HTTP response. Unrecognised errors are logged and reported as a 500
// with a generic message.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) { //nolint:gocyclo // flat error-to-status table
	var locked *auth.AccountLockedError

	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(locked.Until)))
		writeError(w, http.StatusLocked, ErrCodeLocked, "account is locked until "+locked.Until.UTC().Format(time.RFC3339))
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, http.StatusLocked, ErrCodeLocked, "account is locked")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid username or password")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "token expired")
	case errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrTokenNotFound):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "invalid or revoked token")
	case errors.Is(err, auth.ErrUserInactive):
		writeError(w, http.StatusForbidden, ErrCodeInactive, "account is inactive")
	case errors.Is(err, auth.ErrDuplicateUsername),
		errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, auth.ErrDuplicateRoleName):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrRoleNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrInvalidAssignment),
		errors.Is(err, auth.ErrPermissionNotFound),
		errors.Is(err, sessionconfig.ErrConfigKeyInvalid):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}

func retryAfterSeconds(until time.Time) int {
	secs := int(time.Until(until).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
