package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"tutoring-chat/internal/domain"
)

const (
	membershipQuery = `
		SELECT p.room_id, p.user_id, p.joined_at, p.last_read_seq
		FROM room_participants p
		JOIN rooms r ON r.id = p.room_id
		WHERE p.room_id = $1 AND p.user_id = $2 AND r.active
	`
	advanceWatermarkQuery = `
		UPDATE room_participants p
		SET last_read_seq = GREATEST(p.last_read_seq, $3)
		FROM rooms r
		WHERE r.id = p.room_id AND r.active AND p.room_id = $1 AND p.user_id = $2
		RETURNING p.last_read_seq
	`
	listPeersQuery = `
		SELECT DISTINCT other.user_id
		FROM room_participants me
		JOIN rooms r ON r.id = me.room_id AND r.active
		JOIN room_participants other ON other.room_id = me.room_id
		WHERE me.user_id = $1 AND other.user_id <> $1
		ORDER BY other.user_id
	`
)

// ParticipantRepository is the membership directory backed by
// room_participants. Inactive rooms have no members as far as callers can
// tell.
type ParticipantRepository struct {
	db *sql.DB
}

func NewParticipantRepository(db *sql.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func (r *ParticipantRepository) Membership(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	p := &domain.Participant{}
	err := r.db.QueryRowContext(ctx, membershipQuery, roomID, userID).Scan(
		&p.RoomID,
		&p.UserID,
		&p.JoinedAt,
		&p.LastReadSeq,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotParticipant
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return p, nil
}

// AdvanceWatermark moves the read watermark forward to upTo and returns the
// stored value, which is never lower than before.
func (r *ParticipantRepository) AdvanceWatermark(ctx context.Context, roomID, userID string, upTo int64) (int64, error) {
	var watermark int64
	err := r.db.QueryRowContext(ctx, advanceWatermarkQuery, roomID, userID, upTo).Scan(&watermark)
	if err == sql.ErrNoRows {
		return 0, domain.ErrNotParticipant
	}
	if err != nil {
		return 0, fmt.Errorf("failed to advance watermark: %w", err)
	}
	return watermark, nil
}

// ListPeers returns everyone sharing an active room with userID.
func (r *ParticipantRepository) ListPeers(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, listPeersQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query peers: %w", err)
	}
	defer rows.Close()

	peers := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		peers = append(peers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating peers: %w", err)
	}
	return peers, nil
}
