// Package sessionconfig serves the tunable session settings: inactivity
// timeouts, token lifetimes and the auto-refresh flag.
//
// Values live in the session_config table and are read through a Cache,
// in-process by default or Redis when several replicas share settings.
// Reads never fail. A missing row or a store error yields the compiled
// default, so token issuance keeps working when the store misbehaves.
//
// Set invalidates the cache entry of the key it writes, so the next Get on
// this replica sees the new value. Other replicas using a MemoryCache see
// it once their entry expires.
package sessionconfig
