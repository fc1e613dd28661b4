package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	tokenBytes = 32
	// MaxTokenLength bounds what is accepted from callers before any store
	// access. Generated tokens are 43 characters.
	MaxTokenLength = 256
)

// NewToken returns 256 bits from crypto/rand, base64url encoded without
// padding.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// PlausibleToken rejects inputs that cannot match any issued token.
func PlausibleToken(token string) bool {
	return token != "" && len(token) <= MaxTokenLength
}

// TokenFingerprint is a short sha256 prefix of token, safe to log. It lets
// rejected attempts on the same link be correlated without revealing it.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}
