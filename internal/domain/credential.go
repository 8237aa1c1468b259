package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExpired  = errors.New("credential expired")
)

// Credential is an opaque session token issued by the platform's auth
// service. The chat core only reads these.
type Credential struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the credential is no longer valid at now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// CredentialRepository looks up issued tokens.
type CredentialRepository interface {
	GetByToken(ctx context.Context, token string) (*Credential, error)
}
