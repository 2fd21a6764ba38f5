package secretgate

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// PasswordHasher derives salted argon2id hashes.
// Zero fields fall back to the defaults below.
type PasswordHasher struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

const (
	defaultArgonTime    = 1
	defaultArgonMemory  = 64 * 1024
	defaultArgonThreads = 4
	defaultArgonKeyLen  = 32
	defaultSaltLen      = 16
)

// DefaultPasswordHasher uses the RFC 9106 second recommended argon2id parameters
var DefaultPasswordHasher = &PasswordHasher{}

func (h *PasswordHasher) params() (t, m uint32, p uint8, keyLen uint32, saltLen int) {
	t, m, p, keyLen, saltLen = h.Time, h.Memory, h.Threads, h.KeyLen, h.SaltLen
	if t == 0 {
		t = defaultArgonTime
	}
	if m == 0 {
		m = defaultArgonMemory
	}
	if p == 0 {
		p = defaultArgonThreads
	}
	if keyLen == 0 {
		keyLen = defaultArgonKeyLen
	}
	if saltLen <= 0 {
		saltLen = defaultSaltLen
	}
	return
}

// Hash generates a fresh random salt and returns the derived key with it
func (h *PasswordHasher) Hash(password string) (hash, salt []byte, err error) {
	_, _, _, _, saltLen := h.params()
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return h.derive(password, salt), salt, nil
}

// Verify reports whether password hashes to hash under salt.
// The comparison is constant time.
func (h *PasswordHasher) Verify(password string, hash, salt []byte) bool {
	if len(hash) == 0 || len(salt) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(h.derive(password, salt), hash) == 1
}

func (h *PasswordHasher) derive(password string, salt []byte) []byte {
	t, m, p, keyLen, _ := h.params()
	return argon2.IDKey([]byte(password), salt, t, m, p, keyLen)
}
