package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tutoring-chat/internal/domain"
	"tutoring-chat/internal/observability"
)

// ReadStateTracker advances per-participant read watermarks. Watermarks
// never move backward regardless of the order mark-read requests arrive in.
type ReadStateTracker struct {
	participants domain.ParticipantRepository
	messages     domain.MessageRepository
	router       Broadcaster
	timeout      time.Duration
}

func NewReadStateTracker(participants domain.ParticipantRepository, messages domain.MessageRepository,
	router Broadcaster, timeout time.Duration) *ReadStateTracker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ReadStateTracker{
		participants: participants,
		messages:     messages,
		router:       router,
		timeout:      timeout,
	}
}

// MarkRead moves the caller's watermark to max(current, upTo), with upTo
// clamped to the room's last sequence. The resulting watermark is broadcast
// to the room and to the reader's other connections.
func (r *ReadStateTracker) MarkRead(ctx context.Context, userID, roomID string, upTo int64) (int64, error) {
	if upTo < 0 {
		return 0, domain.Invalid("upTo must not be negative")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.membership(ctx, userID, roomID); err != nil {
		return 0, err
	}

	last, err := r.messages.LastSeq(ctx, roomID)
	if err != nil {
		return 0, domain.Transient(fmt.Errorf("load last seq: %w", err))
	}
	if upTo > last {
		upTo = last
	}

	watermark, err := r.participants.AdvanceWatermark(ctx, roomID, userID, upTo)
	if err != nil {
		if errors.Is(err, domain.ErrNotParticipant) {
			return 0, domain.ErrNotParticipant
		}
		return 0, domain.Transient(fmt.Errorf("advance watermark: %w", err))
	}

	r.router.ToRoomAndUser(roomID, userID, domain.Event{
		Type: domain.EventMessagesRead,
		Data: domain.MessagesReadPayload{RoomID: roomID, UpTo: watermark, ReadBy: userID},
	})
	return watermark, nil
}

// UnreadCount returns how many messages of roomID lie past userID's
// watermark.
func (r *ReadStateTracker) UnreadCount(ctx context.Context, userID, roomID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	p, err := r.membership(ctx, userID, roomID)
	if err != nil {
		return 0, err
	}
	n, err := r.messages.CountAfter(ctx, roomID, p.LastReadSeq)
	if err != nil {
		return 0, domain.Transient(fmt.Errorf("count unread: %w", err))
	}
	return n, nil
}

func (r *ReadStateTracker) membership(ctx context.Context, userID, roomID string) (*domain.Participant, error) {
	p, err := r.participants.Membership(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotParticipant) {
			observability.FromContext(ctx).Warn("rejected read state access from non participant",
				slog.String("user_id", userID),
				slog.String("room_id", roomID))
			return nil, domain.ErrNotParticipant
		}
		return nil, domain.Transient(fmt.Errorf("membership lookup: %w", err))
	}
	return p, nil
}
