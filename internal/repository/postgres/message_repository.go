package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"tutoring-chat/internal/domain"
)

const (
	insertMessageQuery = `
		INSERT INTO messages (room_id, seq, sender_id, type, content)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING created_at
	`
	advanceSenderQuery = `
		UPDATE room_participants
		SET last_read_seq = GREATEST(last_read_seq, $3)
		WHERE room_id = $1 AND user_id = $2
	`
	lastSeqQuery    = `SELECT COALESCE(MAX(seq), 0) FROM messages WHERE room_id = $1`
	countAfterQuery = `SELECT COUNT(*) FROM messages WHERE room_id = $1 AND seq > $2`
)

// MessageRepository implements domain.MessageRepository for PostgreSQL
type MessageRepository struct {
	db *sql.DB
	tx *TxManager
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db, tx: NewTxManager(db)}
}

// Append stores msg under the sequence number already assigned to it and
// advances the sender's read watermark in the same transaction. A taken
// sequence number yields domain.ErrSeqConflict.
func (r *MessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, insertMessageQuery,
			msg.RoomID,
			msg.Seq,
			msg.SenderID,
			string(msg.Type),
			msg.Content,
		).Scan(&msg.CreatedAt)
		if IsUniqueViolation(err, constraintMessagesPkey) {
			return domain.ErrSeqConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if msg.SenderID == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, advanceSenderQuery, msg.RoomID, msg.SenderID, msg.Seq); err != nil {
			return fmt.Errorf("failed to advance sender watermark: %w", err)
		}
		return nil
	})
}

// LastSeq returns the highest sequence number in the room, or 0 when it has
// no messages.
func (r *MessageRepository) LastSeq(ctx context.Context, roomID string) (int64, error) {
	var seq int64
	if err := r.db.QueryRowContext(ctx, lastSeqQuery, roomID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to load last seq: %w", err)
	}
	return seq, nil
}

// CountAfter counts the room's messages with a sequence number above seq.
func (r *MessageRepository) CountAfter(ctx context.Context, roomID string, seq int64) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countAfterQuery, roomID, seq).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
