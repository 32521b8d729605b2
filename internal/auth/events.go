package auth

import (
	"context"
	"time"
)

// Event actions.
const (
	ActionLogin     = "LOGIN"
	ActionLockout   = "LOCKOUT"
	ActionLogout    = "LOGOUT"
	ActionLogoutAll = "LOGOUT_ALL"
	ActionRefresh   = "REFRESH"
	ActionRegister  = "REGISTER"

	ActionUserCreate = "USER_CREATE"
	ActionUserUpdate = "USER_UPDATE"
	ActionUserDelete = "USER_DELETE"
)

// Event outcomes.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

// Event describes an authentication event for audit and telemetry.
// It never carries passwords or raw tokens.
type Event struct {
	Action   string         `json:"action"`
	Outcome  string         `json:"outcome"`
	Username string         `json:"username,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
	ClientIP string         `json:"client_ip,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

// EventSink receives authentication events. Implementations handle their
// own failures; Record must not block for long.
type EventSink interface {
	Record(ctx context.Context, e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, e Event)

// Record calls f(ctx, e).
func (f EventSinkFunc) Record(ctx context.Context, e Event) {
	f(ctx, e)
}

// FanOut returns a sink that forwards every event to each non-nil sink in order.
func FanOut(sinks ...EventSink) EventSink {
	active := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return EventSinkFunc(func(ctx context.Context, e Event) {
		for _, s := range active {
			s.Record(ctx, e)
		}
	})
}
