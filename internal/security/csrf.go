package security

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenManager handles anti-forgery token generation.
// Tokens are cryptographically random and stored server-side against the
// anti-forgery session id. Verification is a store lookup, not a signature.
type TokenManager struct{}

// NewTokenManager creates a new CSRF token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate creates a cryptographically secure random token (256 bits).
// The token is returned as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}
