package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// ErrCredentialMismatch is returned by CredentialCache.Verify when the
// supplied plaintext doesn't derive to the stored key.
var ErrCredentialMismatch = errors.New("auth: credential mismatch")

const (
	pbkdf2Iterations = 210000
	pbkdf2KeyLen     = 32
	saltLen          = 16
)

// derivedCredential is what CredentialCache actually retains: a PBKDF2
// derivation of the password, never the plaintext itself. A desktop client
// that wants to "remember" a login across restarts without keeping a
// recoverable password on disk stores this instead.
type derivedCredential struct {
	salt []byte
	key  []byte
}

// CredentialCache holds PBKDF2-derived credentials for reuse across
// reconnects without retaining the plaintext password in memory any longer
// than the single derivation call needs it. It does not replace an OS
// keychain for at-rest storage; it is the in-process analogue used while a
// connection is alive and may be asked to re-authenticate (e.g. after an
// IMAP BYE forces a reconnect).
type CredentialCache struct {
	mu      sync.RWMutex
	entries map[string]derivedCredential
}

// NewCredentialCache returns an empty cache.
func NewCredentialCache() *CredentialCache {
	return &CredentialCache{entries: make(map[string]derivedCredential)}
}

// Store derives a key from password and retains it under identity,
// discarding the plaintext from the cache's own state.
func (c *CredentialCache) Store(identity string, password []byte) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("auth: generating salt: %w", err)
	}
	key := pbkdf2.Key(password, salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identity] = derivedCredential{salt: salt, key: key}
	return nil
}

// Verify reports whether password re-derives to the credential stored for
// identity, in constant time. Returns ErrCredentialMismatch on any
// disagreement, including an unknown identity.
func (c *CredentialCache) Verify(identity string, password []byte) error {
	c.mu.RLock()
	stored, ok := c.entries[identity]
	c.mu.RUnlock()
	if !ok {
		return ErrCredentialMismatch
	}
	candidate := pbkdf2.Key(password, stored.salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	if subtle.ConstantTimeCompare(candidate, stored.key) != 1 {
		return ErrCredentialMismatch
	}
	return nil
}

// Forget removes any cached credential for identity.
func (c *CredentialCache) Forget(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identity)
}
