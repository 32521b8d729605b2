// Package kvstore provides the Redis connection used for shared caches.
//
// The auth core keeps its authoritative state in SQLite. Redis only holds
// derived values (the session configuration cache) so several replicas
// observe a Set without waiting for their local cache TTL.
//
// Usage:
//
//	kv, err := kvstore.Connect(ctx, cfg.Redis)
//	if errors.Is(err, kvstore.ErrDisabled) {
//	    // use the in-process cache
//	}
//	defer kv.Close()
package kvstore
