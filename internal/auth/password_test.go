package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	const password = "correct-horse-battery"

	hash, err := fastHasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("hash = %q, want argon2id PHC with the hasher's cost", hash)
	}

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"same password", password, true},
		{"different password", "correct-horse-batterY", false},
		{"empty password", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := fastHasher.Verify(tt.candidate, hash)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("Verify() = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestPasswordHasher_SaltPerHash(t *testing.T) {
	a, err := fastHasher.Hash("agente-2026")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	b, err := fastHasher.Hash("agente-2026")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if a == b {
		t.Error("hashing the same password twice produced identical strings")
	}
}

func TestPasswordHasher_VerifyUsesStoredCost(t *testing.T) {
	hash, err := fastHasher.Hash("s3cret-pass")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	ok, err := DefaultPasswordHasher().Verify("s3cret-pass", hash)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !ok {
		t.Error("a hash made with a cheaper cost should still verify")
	}
}

func TestPasswordHasher_DefaultCost(t *testing.T) {
	h := DefaultPasswordHasher()
	if h.Time != 3 || h.Memory != 64*1024 || h.Threads != 1 {
		t.Errorf("default cost = t=%d m=%d p=%d", h.Time, h.Memory, h.Threads)
	}
}

func TestPasswordHasher_MalformedHash(t *testing.T) {
	for name, hash := range map[string]string{
		"empty":           "",
		"plaintext":       "hunter22",
		"bcrypt":          "$2a$10$abcdefghijklmnopqrstuv",
		"argon2i":         "$argon2i$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"missing key":     "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ",
		"old version":     "$argon2id$v=16$m=1024,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"bad params":      "$argon2id$v=19$memory=1024$c2FsdHNhbHQ$a2V5a2V5",
		"bad salt base64": "$argon2id$v=19$m=1024,t=1,p=1$***$a2V5a2V5",
		"empty key":       "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$",
	} {
		t.Run(name, func(t *testing.T) {
			ok, err := fastHasher.Verify("anything", hash)
			if !errors.Is(err, ErrMalformedHash) {
				t.Errorf("Verify() error = %v, want ErrMalformedHash", err)
			}
			if ok {
				t.Error("Verify() reported a match for a malformed hash")
			}
		})
	}
}
