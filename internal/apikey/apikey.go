// Package apikey provides the bearer-token primitives shared by the
// report endpoint (C5), the agent command server (C4), and the remote
// command relay (C12). All three speak the same "Authorization: Bearer
// <key>" contract.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Prefix marks a generated key as an Infra-Mapper agent key, the way
// the teacher's session tokens carry a "stk_" prefix.
const Prefix = "imk_"

const rawBytes = 32

// Generate creates a new API key. Returns the plaintext (shown once)
// and its SHA-256 hash (stored).
func Generate() (plaintext string, hash string, err error) {
	raw := make([]byte, rawBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plaintext = Prefix + base64.RawURLEncoding.EncodeToString(raw)
	return plaintext, Hash(plaintext), nil
}

// Hash returns the SHA-256 hex digest of a key string.
func Hash(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// ExtractBearer extracts a bearer token from an Authorization header
// value. Returns "" if not present or malformed.
func ExtractBearer(authHeader string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// Equal compares two keys in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
