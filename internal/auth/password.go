package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Default Argon2id cost (OWASP 2025).
const (
	defaultArgonTime    = 3
	defaultArgonMemory  = 64 * 1024 // KiB
	defaultArgonThreads = 1

	argonKeyLen  = 32
	argonSaltLen = 16

	phcAlgorithm = "argon2id"
	phcFields    = 5 // algorithm, version, params, salt, hash
)

// ErrMalformedHash is returned by Verify when the stored hash is not an
// Argon2id PHC string this package can read.
var ErrMalformedHash = errors.New("malformed password hash")

// PasswordHasher hashes and verifies passwords with Argon2id.
//
// Hashes are stored as PHC strings carrying their own cost, so Verify
// works on hashes made with any settings.
type PasswordHasher struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultPasswordHasher returns a hasher with the production cost.
func DefaultPasswordHasher() *PasswordHasher {
	return &PasswordHasher{Time: defaultArgonTime, Memory: defaultArgonMemory, Threads: defaultArgonThreads}
}

// Hash returns a PHC string such as
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	p := phc{time: h.Time, memory: h.Memory, threads: h.Threads, salt: salt}
	p.key = argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, argonKeyLen)
	return p.String(), nil
}

// Verify reports whether password matches encoded. A malformed hash is an
// error, never a mismatch.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.key))) //nolint:gosec // G115: key length fits uint32
	return subtle.ConstantTimeCompare(p.key, candidate) == 1, nil
}

// phc is a decoded Argon2id PHC string.
type phc struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (p phc) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, argon2.Version,
		p.memory, p.time, p.threads,
		enc.EncodeToString(p.salt), enc.EncodeToString(p.key))
}

func parsePHC(encoded string) (phc, error) {
	var p phc

	rest, ok := strings.CutPrefix(encoded, "$")
	fields := strings.Split(rest, "$")
	if !ok || len(fields) != phcFields {
		return p, fmt.Errorf("%w: expected %d fields", ErrMalformedHash, phcFields)
	}
	if fields[0] != phcAlgorithm {
		return p, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, fields[0])
	}

	var version int
	if _, err := fmt.Sscanf(fields[1], "v=%d", &version); err != nil || version != argon2.Version {
		return p, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[1])
	}
	if _, err := fmt.Sscanf(fields[2], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, fmt.Errorf("%w: parameters: %w", ErrMalformedHash, err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(fields[3]); err != nil {
		return p, fmt.Errorf("%w: salt: %w", ErrMalformedHash, err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return p, fmt.Errorf("%w: key: %w", ErrMalformedHash, err)
	}
	if len(p.key) == 0 {
		return p, fmt.Errorf("%w: empty key", ErrMalformedHash)
	}
	return p, nil
}
