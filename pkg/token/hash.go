package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// secretBytes is the amount of randomness in a freshly issued token secret,
// per the component contract (48 random bytes, URL-safe encoded).
const secretBytes = 48

// GenerateSecret returns a fresh random token secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash computes the peppered HMAC-SHA256 of a token secret. The pepper is a
// process-wide secret held only in memory (never persisted), so a stolen
// database dump alone cannot be used to reverse or dictionary-attack stored
// hashes.
func Hash(pepper, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(secret))
	return mac.Sum(nil)
}
