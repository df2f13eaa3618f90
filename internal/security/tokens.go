// Package security provides opaque session token generation and the hashing
// helpers used to reference tokens without storing or logging them verbatim.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the entropy of a session token: 32 random bytes, 256 bits.
const tokenBytes = 32

// NewSessionToken returns a cryptographically random opaque token, base64url
// encoded without padding. Collision probability across any realistic store
// lifetime is negligible at this entropy.
func NewSessionToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenFingerprint returns a short hex prefix of the token's SHA-256, safe to
// log or index without leaking the token itself.
func TokenFingerprint(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:8])
}

// TokenEqual compares two tokens in constant time.
func TokenEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
