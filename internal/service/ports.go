package service

import (
	"context"
	"time"

	"tutoring-chat/internal/domain"
)

// Broadcaster delivers events to live sessions. Implementations must not
// block on slow receivers.
type Broadcaster interface {
	ToRoom(roomID string, ev domain.Event) int
	ToUser(userID string, ev domain.Event) int
	ToRoomAndUser(roomID, userID string, ev domain.Event) int
}

// RoomIndex is the live room -> sessions index that decides who receives
// room broadcasts.
type RoomIndex interface {
	Attach(roomID string, p domain.Peer) (bool, error)
	Detach(roomID string, p domain.Peer) bool
	DropRoom(roomID string)
}

// PresenceNotifier receives presence transitions in the order the tracker
// applied them. Calls are made under the user's shard lock, so they must
// not block or call back into the tracker.
type PresenceNotifier interface {
	UserOnline(userID string)
	UserOffline(userID string, lastSeen time.Time)
}

// OnlineChecker reports the current presence of a user.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// LastSeenStore keeps the last-seen time of users that went offline.
type LastSeenStore interface {
	SetLastSeen(ctx context.Context, userID string, at time.Time) error
	LastSeen(ctx context.Context, userIDs ...string) (map[string]time.Time, error)
}
