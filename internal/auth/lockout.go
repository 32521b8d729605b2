package auth

import "time"

// Lockout defaults: five consecutive failures lock the account for 30 minutes.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// LockoutPolicy decides when repeated login failures lock an account.
// Its methods only mutate the given user; callers persist the result.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the 5 failures / 30 minutes policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

// OnFailure records a failed attempt. At or past the threshold the lock
// window restarts from now on every further failure.
func (p LockoutPolicy) OnFailure(u *User, now time.Time) {
	u.FailedAttempts++
	if u.FailedAttempts >= p.Threshold {
		until := now.Add(p.Duration)
		u.LockedUntil = &until
	}
}

// OnSuccess clears the failure counter and any lock.
func (p LockoutPolicy) OnSuccess(u *User) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
}

// IsLocked reports whether the account is locked at now.
func (p LockoutPolicy) IsLocked(u *User, now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
