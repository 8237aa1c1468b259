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

// RoomOpenedMessage is the system message that starts every conversation.
const RoomOpenedMessage = "conversation started"

// RoomRegistry authorizes join and leave against the participant directory
// and maintains the live room index. The index is only a cache of who
// receives broadcasts; membership truth is always re-read.
type RoomRegistry struct {
	rooms        domain.RoomRepository
	participants domain.ParticipantRepository
	messages     domain.MessageRepository
	store        *MessageStore
	index        RoomIndex
	router       Broadcaster
	timeout      time.Duration
}

func NewRoomRegistry(rooms domain.RoomRepository, participants domain.ParticipantRepository,
	messages domain.MessageRepository, store *MessageStore, index RoomIndex, router Broadcaster,
	timeout time.Duration) *RoomRegistry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RoomRegistry{
		rooms:        rooms,
		participants: participants,
		messages:     messages,
		store:        store,
		index:        index,
		router:       router,
		timeout:      timeout,
	}
}

// Join attaches the session to roomID after re-checking membership. Joining
// twice leaves a single registration.
func (r *RoomRegistry) Join(ctx context.Context, p domain.Peer, roomID string) (domain.ChatJoinedPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	member, err := r.participants.Membership(ctx, roomID, p.UserID())
	if err != nil {
		if errors.Is(err, domain.ErrNotParticipant) {
			observability.FromContext(ctx).Warn("unauthorized join attempt",
				slog.String("user_id", p.UserID()),
				slog.String("conn_id", p.ID()),
				slog.String("room_id", roomID))
			return domain.ChatJoinedPayload{}, domain.ErrNotParticipant
		}
		return domain.ChatJoinedPayload{}, domain.Transient(fmt.Errorf("membership lookup: %w", err))
	}

	lastSeq, err := r.messages.LastSeq(ctx, roomID)
	if err != nil {
		return domain.ChatJoinedPayload{}, domain.Transient(fmt.Errorf("load last seq: %w", err))
	}
	unread, err := r.messages.CountAfter(ctx, roomID, member.LastReadSeq)
	if err != nil {
		return domain.ChatJoinedPayload{}, domain.Transient(fmt.Errorf("count unread: %w", err))
	}

	added, err := r.index.Attach(roomID, p)
	if err != nil {
		// The room was deactivated after the membership check.
		observability.FromContext(ctx).Warn("join raced room deactivation",
			slog.String("user_id", p.UserID()),
			slog.String("conn_id", p.ID()),
			slog.String("room_id", roomID))
		return domain.ChatJoinedPayload{}, err
	}
	if added {
		slog.Debug("session joined room",
			slog.String("user_id", p.UserID()),
			slog.String("conn_id", p.ID()),
			slog.String("room_id", roomID))
	}

	return domain.ChatJoinedPayload{
		RoomID:   roomID,
		LastSeq:  lastSeq,
		LastRead: member.LastReadSeq,
		Unread:   unread,
	}, nil
}

// Leave detaches the session from roomID. It always succeeds.
func (r *RoomRegistry) Leave(p domain.Peer, roomID string) domain.RoomPayload {
	r.index.Detach(roomID, p)
	return domain.RoomPayload{RoomID: roomID}
}

// OpenRoom creates a room for its founders, records the opening system
// message and tells each founder about it. Redelivery of the same room is
// a no-op.
func (r *RoomRegistry) OpenRoom(ctx context.Context, roomID string, participants []string) error {
	if roomID == "" {
		return domain.Invalid("room id is required")
	}
	founders, err := domain.NormalizeParticipants(participants)
	if err != nil {
		return &domain.Error{Kind: domain.KindValidation, Reason: domain.ReasonInvalidPayload, Msg: err.Error(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	room := &domain.Room{ID: roomID, Participants: founders}
	if err := r.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, domain.ErrRoomExists) {
			slog.Info("room already open", slog.String("room_id", roomID))
			return nil
		}
		return domain.Transient(fmt.Errorf("create room: %w", err))
	}

	if _, err := r.store.AppendSystem(ctx, roomID, RoomOpenedMessage); err != nil {
		// The room exists; a missing opening line is not worth failing over.
		slog.Warn("failed to append opening message",
			slog.String("room_id", roomID),
			slog.String("error", err.Error()))
	}

	ev := domain.Event{
		Type: domain.EventRoomCreated,
		Data: domain.RoomPayload{RoomID: roomID, Participants: founders},
	}
	for _, userID := range founders {
		r.router.ToUser(userID, ev)
	}

	slog.Info("room opened",
		slog.String("room_id", roomID),
		slog.Int("participants", len(founders)))
	return nil
}

// Deactivate marks roomID inactive, tells joined sessions and evicts them
// from the live index.
func (r *RoomRegistry) Deactivate(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rooms.Deactivate(ctx, roomID); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			slog.Warn("deactivation for unknown room", slog.String("room_id", roomID))
			return nil
		}
		return domain.Transient(fmt.Errorf("deactivate room: %w", err))
	}

	r.router.ToRoom(roomID, domain.Event{
		Type: domain.EventRoomDeactivated,
		Data: domain.RoomPayload{RoomID: roomID},
	})
	r.index.DropRoom(roomID)
	r.store.Forget(roomID)

	slog.Info("room deactivated", slog.String("room_id", roomID))
	return nil
}
