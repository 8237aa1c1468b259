package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomExists     = errors.New("room already exists")
	ErrTooFewFounders = errors.New("a room needs at least two distinct participants")
)

// MinParticipants is the floor a room never shrinks below.
const MinParticipants = 2

// Room identifies a conversation between its participants.
type Room struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasParticipant reports whether userID is one of the room's participants.
func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Participant is the membership record tying a user to a room.
type Participant struct {
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	JoinedAt    time.Time `json:"joined_at"`
	LastReadSeq int64     `json:"last_read_seq"`
}

// NormalizeParticipants drops blanks and duplicates while keeping order.
func NormalizeParticipants(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) < MinParticipants {
		return nil, ErrTooFewFounders
	}
	return out, nil
}

// RoomRepository persists rooms and their founding participants.
type RoomRepository interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, id string) (*Room, error)
	Deactivate(ctx context.Context, id string) error
}

// ParticipantRepository is the authoritative membership and read-state
// directory. Membership returns ErrNotParticipant when the user is not a
// participant of an active room.
type ParticipantRepository interface {
	Membership(ctx context.Context, roomID, userID string) (*Participant, error)
	AdvanceWatermark(ctx context.Context, roomID, userID string, upTo int64) (int64, error)
	ListPeers(ctx context.Context, userID string) ([]string, error)
}
