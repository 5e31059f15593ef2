package auth

import (
	"crypto/rand"
	"encoding/base64"
)

// NewSessionToken returns 32 bytes of crypto/rand entropy encoded as
// URL-safe base64. Tokens are opaque; all meaning lives in the sessions
// table so logout can revoke them.
func NewSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}
