package model

import "time"

// Credential maps an opaque secret to an account.
// Only the SHA-256 digest of the secret is stored.
type Credential struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Digest    string    `json:"-"` // Never serialize
	Prefix    string    `json:"prefix"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthContext holds authenticated request context.
// This is injected into the request context by auth middleware.
type AuthContext struct {
	AccountID        string
	Username         string
	CredentialID     string
	CredentialPrefix string
}

// IssuedCredential is returned once, when a credential is created.
type IssuedCredential struct {
	Credential *Credential
	Secret     string // Plaintext - display once only!
}
