package auth

import (
	"testing"
	"time"
)

func TestLockoutPolicy_LocksAtThreshold(t *testing.T) {
	p := DefaultLockoutPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &User{}

	for i := 1; i < DefaultLockoutThreshold; i++ {
		p.OnFailure(u, now)
		if p.IsLocked(u, now) {
			t.Fatalf("locked after %d failures, want unlocked until %d", i, DefaultLockoutThreshold)
		}
	}

	p.OnFailure(u, now)
	if !p.IsLocked(u, now) {
		t.Fatal("IsLocked() = false after threshold failures")
	}
	if u.FailedAttempts != DefaultLockoutThreshold {
		t.Errorf("FailedAttempts = %d, want %d", u.FailedAttempts, DefaultLockoutThreshold)
	}
	if want := now.Add(30 * time.Minute); !u.LockedUntil.Equal(want) {
		t.Errorf("LockedUntil = %v, want %v", u.LockedUntil, want)
	}
}

func TestLockoutPolicy_ExpiresAfterDuration(t *testing.T) {
	p := DefaultLockoutPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &User{FailedAttempts: 4}

	p.OnFailure(u, now)

	if !p.IsLocked(u, now.Add(29*time.Minute)) {
		t.Error("IsLocked() should be true inside the lock window")
	}
	if p.IsLocked(u, now.Add(30*time.Minute)) {
		t.Error("IsLocked() should be false once the window has elapsed")
	}
}

func TestLockoutPolicy_FailurePastThresholdRestartsWindow(t *testing.T) {
	p := DefaultLockoutPolicy()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &User{FailedAttempts: 5}

	later := start.Add(45 * time.Minute)
	p.OnFailure(u, later)

	if u.FailedAttempts != 6 {
		t.Errorf("FailedAttempts = %d, want 6", u.FailedAttempts)
	}
	if want := later.Add(30 * time.Minute); !u.LockedUntil.Equal(want) {
		t.Errorf("LockedUntil = %v, want %v", u.LockedUntil, want)
	}
}

func TestLockoutPolicy_SuccessResets(t *testing.T) {
	p := DefaultLockoutPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &User{}

	for range 3 {
		p.OnFailure(u, now)
	}
	p.OnSuccess(u)

	if u.FailedAttempts != 0 {
		t.Errorf("FailedAttempts = %d, want 0", u.FailedAttempts)
	}
	if u.LockedUntil != nil {
		t.Errorf("LockedUntil = %v, want nil", u.LockedUntil)
	}

	// A fresh run of failures is needed to lock again.
	for range 4 {
		p.OnFailure(u, now)
	}
	if p.IsLocked(u, now) {
		t.Error("IsLocked() should be false after 4 failures following a reset")
	}
}

func TestLockoutPolicy_CustomThreshold(t *testing.T) {
	p := LockoutPolicy{Threshold: 2, Duration: time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &User{}

	p.OnFailure(u, now)
	p.OnFailure(u, now)

	if !p.IsLocked(u, now.Add(59*time.Second)) {
		t.Error("IsLocked() should be true with custom threshold")
	}
}
