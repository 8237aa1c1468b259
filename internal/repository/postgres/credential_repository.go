package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tutoring-chat/internal/domain"
)

const getCredentialQuery = `
		SELECT token, user_id, expires_at, created_at
		FROM sessions
		WHERE token = $1
	`

// CredentialRepository reads opaque session tokens issued by the platform
// auth service. The chat core never writes to the sessions table.
type CredentialRepository struct {
	getByTokenStmt *sql.Stmt
}

// NewCredentialRepository creates a CredentialRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewCredentialRepository(db *sql.DB) (*CredentialRepository, error) {
	stmt, err := db.Prepare(getCredentialQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getByToken statement: %w", err)
	}
	return &CredentialRepository{getByTokenStmt: stmt}, nil
}

// GetByToken returns domain.ErrCredentialNotFound for unknown tokens and
// domain.ErrCredentialExpired for tokens past their expiry.
func (r *CredentialRepository) GetByToken(ctx context.Context, token string) (*domain.Credential, error) {
	c := &domain.Credential{}
	err := r.getByTokenStmt.QueryRowContext(ctx, token).Scan(
		&c.Token,
		&c.UserID,
		&c.ExpiresAt,
		&c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential by token: %w", err)
	}
	if c.Expired(time.Now()) {
		return nil, domain.ErrCredentialExpired
	}
	return c, nil
}

// Close releases the prepared statement.
func (r *CredentialRepository) Close() error {
	return r.getByTokenStmt.Close()
}
