package sessionconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cashi/auth-core/internal/infrastructure/logging"
)

// Provider serves session configuration values with a cache in front of
// the store. Reads never fail: store errors fall back to compiled defaults.
//
// Each key carries a write generation. A read only fills the cache if no
// Set for that key ran while it was at the store, so a slow read cannot
// put a value back that a write already replaced. The guard is per
// process; replicas sharing Redis still converge within the cache TTL.
type Provider struct {
	store  Store
	cache  Cache
	logger *logging.Logger

	mu  sync.Mutex // orders cache fills against invalidations
	gen map[string]uint64
}

// NewProvider creates a provider. A nil cache means an in-process
// MemoryCache with DefaultCacheTTL.
func NewProvider(store Store, cache Cache, logger *logging.Logger) *Provider {
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Provider{
		store:  store,
		cache:  cache,
		logger: logger.With("component", "sessionconfig"),
		gen:    make(map[string]uint64),
	}
}

// Get returns the value of key. Unrecognised keys yield 0. When no active
// row exists, or the store fails, the compiled default is returned.
func (p *Provider) Get(ctx context.Context, key string) int {
	if !IsValidKey(key) {
		return 0
	}

	if v, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("session config cache read failed", "key", key, "error", err)
	} else if ok {
		return v
	}

	seen := p.generation(key)
	entry, err := p.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Default(key)
	}
	if err != nil {
		p.logger.Warn("session config store read failed, using default",
			"key", key, "default", Default(key), "error", err)
		return Default(key)
	}

	p.fill(ctx, key, seen, entry.Value)
	return entry.Value
}

func (p *Provider) generation(key string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen[key]
}

// fill caches value unless key was written after generation seen was read.
func (p *Provider) fill(ctx context.Context, key string, seen uint64, value int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen[key] != seen {
		return
	}
	if err := p.cache.Set(ctx, key, value); err != nil {
		p.logger.Warn("session config cache write failed", "key", key, "error", err)
	}
}

// GetAll returns the value of every recognised key.
func (p *Provider) GetAll(ctx context.Context) map[string]int {
	all := make(map[string]int, len(knownKeys))
	for _, k := range knownKeys {
		all[k.key] = p.Get(ctx, k.key)
	}
	return all
}

// Set updates key and invalidates its cached value.
// Keys outside the recognised set return ErrConfigKeyInvalid.
func (p *Provider) Set(ctx context.Context, key string, value int) error {
	if !IsValidKey(key) {
		return fmt.Errorf("%w: %s", ErrConfigKeyInvalid, key)
	}
	if err := p.store.Upsert(ctx, key, value, Description(key)); err != nil {
		return err
	}
	p.invalidate(ctx, key)
	p.logger.Info("session config updated", "key", key, "value", value)
	return nil
}

func (p *Provider) invalidate(ctx context.Context, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen[key]++
	if err := p.cache.Delete(ctx, key); err != nil {
		p.logger.Warn("session config cache invalidation failed", "key", key, "error", err)
	}
}

// InitializeDefaults creates any missing rows with their default values.
// Existing rows are left untouched.
func (p *Provider) InitializeDefaults(ctx context.Context) error {
	for _, k := range knownKeys {
		if err := p.store.InsertIfMissing(ctx, k.key, k.defaultValue, k.description); err != nil {
			return err
		}
	}
	return nil
}

// List returns an entry for every recognised key in presentation order.
// Keys without a stored row are reported with their default value.
func (p *Provider) List(ctx context.Context) ([]Entry, error) {
	stored, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]Entry, len(stored))
	for _, e := range stored {
		byKey[e.Key] = e
	}

	entries := make([]Entry, 0, len(knownKeys))
	for _, k := range knownKeys {
		e, ok := byKey[k.key]
		if !ok {
			e = Entry{Key: k.key, Value: k.defaultValue, Description: k.description, IsActive: true}
		}
		if e.Description == "" {
			e.Description = k.description
		}
		entries = append(entries, e)
	}
	return entries, nil
}
