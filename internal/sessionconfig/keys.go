package sessionconfig

import "errors"

// Recognised session configuration keys. Values are seconds except
// KeyAutoRefreshEnabled, which is a 0/1 flag.
const (
	KeyInactivityTimeout      = "TIMEOUT_INACTIVIDAD"
	KeyInactivityWarning      = "TIMEOUT_WARNING"
	KeyAccessTokenExpiration  = "ACCESS_TOKEN_EXPIRATION"
	KeyRefreshTokenExpiration = "REFRESH_TOKEN_EXPIRATION"
	KeyAutoRefreshEnabled     = "AUTO_REFRESH_ENABLED"
)

// ErrConfigKeyInvalid is returned by Set for keys outside the recognised set.
var ErrConfigKeyInvalid = errors.New("invalid session config key")

type keyInfo struct {
	key          string
	defaultValue int
	description  string
}

// knownKeys lists the recognised keys in presentation order.
var knownKeys = []keyInfo{
	{KeyInactivityTimeout, 900, "Seconds of inactivity before the session is closed"},
	{KeyInactivityWarning, 60, "Seconds before the inactivity timeout at which the user is warned"},
	{KeyAccessTokenExpiration, 3600, "Access token lifetime in seconds"},
	{KeyRefreshTokenExpiration, 604800, "Refresh token lifetime in seconds"},
	{KeyAutoRefreshEnabled, 1, "Whether clients refresh access tokens automatically (1 = yes, 0 = no)"},
}

// Keys returns the recognised keys in presentation order.
func Keys() []string {
	keys := make([]string, len(knownKeys))
	for i, k := range knownKeys {
		keys[i] = k.key
	}
	return keys
}

// IsValidKey reports whether key is one of the recognised keys.
func IsValidKey(key string) bool {
	_, ok := lookup(key)
	return ok
}

// Default returns the compiled default for key, or 0 if key is unknown.
func Default(key string) int {
	k, _ := lookup(key)
	return k.defaultValue
}

// Description returns the canonical description for key.
func Description(key string) string {
	k, _ := lookup(key)
	return k.description
}

func lookup(key string) (keyInfo, bool) {
	for _, k := range knownKeys {
		if k.key == key {
			return k, true
		}
	}
	return keyInfo{}, false
}
