package identity

import (
	"context"
	"errors"
	"time"

	"tutoring-chat/internal/domain"
)

// SessionVerifier accepts opaque tokens issued by the platform auth service
// and stored in its sessions table.
type SessionVerifier struct {
	repo domain.CredentialRepository
	now  func() time.Time
}

func NewSessionVerifier(repo domain.CredentialRepository) *SessionVerifier {
	return &SessionVerifier{repo: repo, now: time.Now}
}

func (v *SessionVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, domain.ErrInvalidCredential
	}

	cred, err := v.repo.GetByToken(ctx, credential)
	switch {
	case errors.Is(err, domain.ErrCredentialNotFound), errors.Is(err, domain.ErrCredentialExpired):
		return Identity{}, domain.ErrInvalidCredential
	case err != nil:
		return Identity{}, domain.Transient(err)
	}

	if cred.Expired(v.now()) {
		return Identity{}, domain.ErrInvalidCredential
	}

	return Identity{UserID: cred.UserID}, nil
}
