package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// GenerateRememberToken returns a new high-entropy remember token (32 random
// bytes, base64url). The raw value is returned to the client exactly once;
// only its hash is ever persisted.
func GenerateRememberToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRememberToken returns a SHA-256 hash of the remember token, hex-encoded.
// Used for storing and looking up remember tokens without storing the raw value.
func HashRememberToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
