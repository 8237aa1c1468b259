// Package identity resolves bearer credentials to user identities before a
// connection is admitted.
package identity

import (
	"context"
	"strings"
)

// Identity is an authenticated user.
type Identity struct {
	UserID string
}

// Verifier validates a credential. Implementations return
// domain.ErrInvalidCredential for credentials that will never be valid and
// a transient error for infrastructure failures.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, credential string) (Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, credential string) (Identity, error) {
	return f(ctx, credential)
}

// Chain routes JWTs to one verifier and opaque session tokens to another.
type Chain struct {
	JWT     Verifier
	Session Verifier
}

func (c Chain) Verify(ctx context.Context, credential string) (Identity, error) {
	if c.Session == nil || (c.JWT != nil && looksLikeJWT(credential)) {
		return c.JWT.Verify(ctx, credential)
	}
	return c.Session.Verify(ctx, credential)
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
