package sessionconfig

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/cashi/auth-core/internal/infrastructure/config"
	"github.com/cashi/auth-core/internal/infrastructure/database"
	"github.com/cashi/auth-core/internal/infrastructure/logging"
	_ "github.com/cashi/auth-core/migrations" // registers the embedded schema
)

// testDB creates a migrated temporary SQLite database.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "sessioncfg.db"),
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

func testLogger(buf *bytes.Buffer) *logging.Logger {
	return logging.NewWithWriter(buf, config.LoggingConfig{Level: "debug", Format: "json"}, "test")
}

func TestProvider_DefaultsWithoutRows(t *testing.T) {
	p := NewProvider(NewSQLiteStore(testDB(t)), nil, nil)
	ctx := t.Context()

	want := map[string]int{
		KeyInactivityTimeout:      900,
		KeyInactivityWarning:      60,
		KeyAccessTokenExpiration:  3600,
		KeyRefreshTokenExpiration: 604800,
		KeyAutoRefreshEnabled:     1,
	}
	for key, v := range want {
		if got := p.Get(ctx, key); got != v {
			t.Errorf("Get(%s) = %d, want %d", key, got, v)
		}
	}

	if got := p.Get(ctx, "NOT_A_KEY"); got != 0 {
		t.Errorf("Get(unknown) = %d, want 0", got)
	}
}

func TestProvider_SetVisibleImmediately(t *testing.T) {
	p := NewProvider(NewSQLiteStore(testDB(t)), NewMemoryCache(DefaultCacheTTL), nil)
	ctx := t.Context()

	if got := p.Get(ctx, KeyAccessTokenExpiration); got != 3600 {
		t.Fatalf("Get() before Set = %d, want 3600", got)
	}
	if err := p.InitializeDefaults(ctx); err != nil {
		t.Fatalf("InitializeDefaults() error = %v", err)
	}
	// Warm the cache so Set has something to invalidate.
	if got := p.Get(ctx, KeyAccessTokenExpiration); got != 3600 {
		t.Fatalf("Get() after init = %d, want 3600", got)
	}

	if err := p.Set(ctx, KeyAccessTokenExpiration, 7200); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := p.Get(ctx, KeyAccessTokenExpiration); got != 7200 {
		t.Errorf("Get() after Set = %d, want 7200", got)
	}
	if got := p.GetAll(ctx)[KeyAccessTokenExpiration]; got != 7200 {
		t.Errorf("GetAll()[%s] = %d, want 7200", KeyAccessTokenExpiration, got)
	}
}

func TestProvider_SetCreatesRowWithDescription(t *testing.T) {
	db := testDB(t)
	p := NewProvider(NewSQLiteStore(db), nil, nil)
	ctx := t.Context()

	if err := p.Set(ctx, KeyInactivityWarning, 120); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var value int
	var description string
	err := db.QueryRowContext(ctx,
		`SELECT value, description FROM session_config WHERE key = ?`, KeyInactivityWarning,
	).Scan(&value, &description)
	if err != nil {
		t.Fatalf("reading row: %v", err)
	}
	if value != 120 || description != Description(KeyInactivityWarning) {
		t.Errorf("row = %d/%q, want 120/%q", value, description, Description(KeyInactivityWarning))
	}
}

func TestProvider_SetRejectsUnknownKey(t *testing.T) {
	p := NewProvider(NewSQLiteStore(testDB(t)), nil, nil)
	err := p.Set(t.Context(), "SESSION_COLOUR", 3)
	if !errors.Is(err, ErrConfigKeyInvalid) {
		t.Errorf("Set(unknown) error = %v, want ErrConfigKeyInvalid", err)
	}
}

func TestProvider_InitializeDefaultsIdempotent(t *testing.T) {
	db := testDB(t)
	p := NewProvider(NewSQLiteStore(db), nil, nil)
	ctx := t.Context()

	if err := p.InitializeDefaults(ctx); err != nil {
		t.Fatalf("InitializeDefaults() error = %v", err)
	}
	if err := p.Set(ctx, KeyInactivityTimeout, 1800); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := p.InitializeDefaults(ctx); err != nil {
		t.Fatalf("second InitializeDefaults() error = %v", err)
	}

	var rows int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_config`).Scan(&rows); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if rows != len(Keys()) {
		t.Errorf("rows = %d, want %d", rows, len(Keys()))
	}
	if got := p.Get(ctx, KeyInactivityTimeout); got != 1800 {
		t.Errorf("InitializeDefaults() overwrote a value: got %d, want 1800", got)
	}
}

func TestProvider_InactiveRowFallsBack(t *testing.T) {
	db := testDB(t)
	p := NewProvider(NewSQLiteStore(db), nil, nil)
	ctx := t.Context()

	if err := p.Set(ctx, KeyRefreshTokenExpiration, 10); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE session_config SET is_active = 0 WHERE key = ?`, KeyRefreshTokenExpiration); err != nil {
		t.Fatalf("deactivating row: %v", err)
	}
	if got := p.Get(ctx, KeyRefreshTokenExpiration); got != 604800 {
		t.Errorf("Get() with inactive row = %d, want default 604800", got)
	}
}

func TestProvider_List(t *testing.T) {
	p := NewProvider(NewSQLiteStore(testDB(t)), nil, nil)
	ctx := t.Context()

	if err := p.Set(ctx, KeyAutoRefreshEnabled, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	entries, err := p.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != len(Keys()) {
		t.Fatalf("List() = %d entries, want %d", len(entries), len(Keys()))
	}
	for i, key := range Keys() {
		if entries[i].Key != key {
			t.Errorf("List()[%d].Key = %q, want %q", i, entries[i].Key, key)
		}
		if entries[i].Description == "" {
			t.Errorf("List()[%d] has no description", i)
		}
	}
	if entries[4].Value != 0 || entries[4].UpdatedAt == nil {
		t.Errorf("stored entry = %+v, want value 0 with timestamp", entries[4])
	}
	if entries[0].Value != 900 || entries[0].UpdatedAt != nil {
		t.Errorf("default entry = %+v, want value 900 without timestamp", entries[0])
	}
}

func TestProvider_StoreErrorsMasked(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT key, value, description, is_active, updated_at FROM session_config").
		WillReturnError(errors.New("database disk image is malformed"))

	var buf bytes.Buffer
	p := NewProvider(NewSQLiteStore(db), nil, testLogger(&buf))

	if got := p.Get(t.Context(), KeyAccessTokenExpiration); got != 3600 {
		t.Errorf("Get() with failing store = %d, want default 3600", got)
	}
	if !strings.Contains(buf.String(), "using default") {
		t.Errorf("store failure should be logged at warn, log = %s", buf.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProvider_CachesStoreReads(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"key", "value", "description", "is_active", "updated_at"}).
		AddRow(KeyAccessTokenExpiration, 1200, "Access token lifetime in seconds", 1, "2026-03-01T12:00:00Z")
	mock.ExpectQuery("FROM session_config WHERE key").WillReturnRows(rows)

	p := NewProvider(NewSQLiteStore(db), nil, nil)
	for range 3 {
		if got := p.Get(t.Context(), KeyAccessTokenExpiration); got != 1200 {
			t.Errorf("Get() = %d, want 1200", got)
		}
	}
	// Only one query was expected; further reads came from the cache.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// pausingStore holds the first Get after it has read from the store,
// until release is closed.
type pausingStore struct {
	Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *pausingStore) Get(ctx context.Context, key string) (*Entry, error) {
	e, err := s.Store.Get(ctx, key)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return e, err
}

func TestProvider_SlowReadDoesNotRecacheReplacedValue(t *testing.T) {
	base := NewSQLiteStore(testDB(t))
	if err := base.Upsert(t.Context(), KeyAccessTokenExpiration, 1200, ""); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	store := &pausingStore{Store: base, read: make(chan struct{}), release: make(chan struct{})}
	p := NewProvider(store, nil, nil)

	done := make(chan int, 1)
	go func() { done <- p.Get(context.Background(), KeyAccessTokenExpiration) }()

	<-store.read
	if err := p.Set(t.Context(), KeyAccessTokenExpiration, 600); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	close(store.release)

	if got := <-done; got != 1200 {
		t.Errorf("in-flight Get() = %d, want the value it read (1200)", got)
	}
	if got := p.Get(t.Context(), KeyAccessTokenExpiration); got != 600 {
		t.Errorf("Get() after Set = %d, want 600", got)
	}
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (int, bool, error) {
	return 0, false, errors.New("cache down")
}
func (failingCache) Set(context.Context, string, int) error { return errors.New("cache down") }
func (failingCache) Delete(context.Context, string) error   { return errors.New("cache down") }

func TestProvider_CacheErrorsNotFatal(t *testing.T) {
	p := NewProvider(NewSQLiteStore(testDB(t)), failingCache{}, nil)
	ctx := t.Context()

	if err := p.Set(ctx, KeyAccessTokenExpiration, 90); err != nil {
		t.Fatalf("Set() with failing cache error = %v", err)
	}
	if got := p.Get(ctx, KeyAccessTokenExpiration); got != 90 {
		t.Errorf("Get() with failing cache = %d, want 90", got)
	}
}
