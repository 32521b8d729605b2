package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cashi/auth-core/internal/infrastructure/database"
	_ "github.com/cashi/auth-core/migrations" // registers the embedded schema
)

const testSecret = "test-secret-key-that-is-at-least-32-chars"

// fastHasher keeps Argon2id cheap in tests.
var fastHasher = &PasswordHasher{Time: 1, Memory: 1024, Threads: 1}

// testDB creates a temporary SQLite database with every migration applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db
}

// staticSettings serves session settings from a map. Missing keys yield 0.
type staticSettings map[string]int

func (s staticSettings) Get(_ context.Context, key string) int {
	return s[key]
}

// testClock is a settable clock shared by the service, store and issuer.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testIssuer(t *testing.T, settings SessionSettings) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testSecret, "authcore-test", settings)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return iss
}

// recordingSink captures emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Record(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) count(action, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Action == action && e.Outcome == outcome {
			n++
		}
	}
	return n
}

// testService wires a Service over db with a fixed clock and an event recorder.
func testService(t *testing.T, db *database.DB) (*Service, *testClock, *recordingSink) {
	t.Helper()

	clock := newTestClock()
	iss := testIssuer(t, staticSettings{})
	iss.now = clock.Now

	sink := &recordingSink{}
	svc, err := NewService(Deps{
		DB:     db,
		Issuer: iss,
		Hasher: fastHasher,
		Events: sink,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.now = clock.Now
	svc.tokens.now = clock.Now
	return svc, clock, sink
}

// seedRole creates a role linked to the given permission codes.
func seedRole(t *testing.T, db *database.DB, name string, codes []string, assignments ...RoleAssignment) *Role {
	t.Helper()
	ctx := t.Context()

	perms := NewPermissionRepository(db)
	role := &Role{Name: name, IsActive: true, Assignments: assignments}
	for _, code := range codes {
		p, err := perms.GetByCode(ctx, code)
		if err != nil {
			t.Fatalf("GetByCode(%q) error = %v", code, err)
		}
		role.Permissions = append(role.Permissions, *p)
	}

	if err := NewRoleRepository(db).Create(ctx, role); err != nil {
		t.Fatalf("seeding role %q: %v", name, err)
	}
	return role
}

// seedUser creates an active user with the given password and role names.
func seedUser(t *testing.T, db *database.DB, username, password string, roleNames ...string) *User {
	t.Helper()
	ctx := t.Context()

	hash, err := fastHasher.Hash(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		FullName:     "Test " + username,
		IsActive:     true,
	}
	roles := NewRoleRepository(db)
	for _, name := range roleNames {
		role, err := roles.GetByName(ctx, name)
		if err != nil {
			t.Fatalf("GetByName(%q) error = %v", name, err)
		}
		user.Roles = append(user.Roles, *role)
	}

	if err := NewUserRepository(db).Create(ctx, user); err != nil {
		t.Fatalf("seeding user %q: %v", username, err)
	}
	return user
}

func int64p(v int64) *int64 { return &v }
