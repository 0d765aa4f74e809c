package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// SecretBytes is the entropy of a credential secret (64 hex chars).
	SecretBytes = 32
	// PrefixLen is the visible part of a secret used in logs and listings.
	PrefixLen = 8
)

// GeneratedSecret contains a newly minted credential secret.
type GeneratedSecret struct {
	Plaintext string // Full secret (show once only)
	Digest    string // SHA-256 hex, stored for lookup
	Prefix    string // First PrefixLen chars
}

// GenerateSecret mints a new opaque credential secret.
func GenerateSecret() (*GeneratedSecret, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	plaintext := hex.EncodeToString(buf)

	return &GeneratedSecret{
		Plaintext: plaintext,
		Digest:    Digest(plaintext),
		Prefix:    plaintext[:PrefixLen],
	}, nil
}

// Digest returns the SHA-256 hex digest of a secret.
// Secrets are opaque: no structure is parsed or validated.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DigestsEqual compares two digests in constant time.
func DigestsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SecretPrefix returns the loggable prefix of a presented secret.
func SecretPrefix(secret string) string {
	if len(secret) <= PrefixLen {
		return ""
	}
	return secret[:PrefixLen]
}
