package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"tutoring-chat/internal/domain"
)

const (
	insertRoomQuery = `
		INSERT INTO rooms (id)
		VALUES ($1)
		RETURNING active, created_at
	`
	insertParticipantQuery = `
		INSERT INTO room_participants (room_id, user_id, position)
		VALUES ($1, $2, $3)
	`
	getRoomQuery = `
		SELECT id, active, created_at
		FROM rooms
		WHERE id = $1
	`
	listParticipantsQuery = `
		SELECT user_id
		FROM room_participants
		WHERE room_id = $1
		ORDER BY position
	`
	deactivateRoomQuery = `UPDATE rooms SET active = FALSE WHERE id = $1`
)

// RoomRepository implements domain.RoomRepository for PostgreSQL
type RoomRepository struct {
	db *sql.DB
	tx *TxManager
}

// NewRoomRepository creates a new PostgreSQL room repository
func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db, tx: NewTxManager(db)}
}

// Create inserts the room and its founders atomically. An existing room id
// yields domain.ErrRoomExists and leaves the stored room untouched.
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, insertRoomQuery, room.ID).Scan(&room.Active, &room.CreatedAt)
		if IsUniqueViolation(err, constraintRoomsPkey) {
			return domain.ErrRoomExists
		}
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}

		for i, userID := range room.Participants {
			if _, err := tx.ExecContext(ctx, insertParticipantQuery, room.ID, userID, i); err != nil {
				if IsUniqueViolation(err, constraintParticipantPair) {
					return fmt.Errorf("duplicate participant %s: %w", userID, err)
				}
				return fmt.Errorf("failed to add participant: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a room with its participants in founding order
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	room := &domain.Room{}
	err := r.db.QueryRowContext(ctx, getRoomQuery, id).Scan(&room.ID, &room.Active, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, listParticipantsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		room.Participants = append(room.Participants, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return room, nil
}

// Deactivate marks the room inactive. Rooms are never deleted.
func (r *RoomRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, deactivateRoomQuery, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate room: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}
