package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"tutoring-chat/internal/domain"
	"tutoring-chat/internal/observability"
)

// MessageStore is the authoritative ordered log of messages per room. It
// assigns sequence numbers, persists messages and triggers the new-message
// broadcast while the room's slot is held, so delivery order matches
// sequence order.
type MessageStore struct {
	messages     domain.MessageRepository
	participants domain.ParticipantRepository
	router       Broadcaster
	locks        *roomLocks

	maxContentBytes int
	persistTimeout  time.Duration
}

// MessageStoreConfig tunes validation and timeouts.
type MessageStoreConfig struct {
	MaxContentBytes int
	PersistTimeout  time.Duration
}

func NewMessageStore(messages domain.MessageRepository, participants domain.ParticipantRepository,
	router Broadcaster, cfg MessageStoreConfig) *MessageStore {
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = 4000
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	return &MessageStore{
		messages:        messages,
		participants:    participants,
		router:          router,
		locks:           newRoomLocks(),
		maxContentBytes: cfg.MaxContentBytes,
		persistTimeout:  cfg.PersistTimeout,
	}
}

// Append validates and stores a client message. Checks short-circuit in
// order: membership, content, type. A rejected send consumes no sequence
// number.
func (s *MessageStore) Append(ctx context.Context, roomID, senderID, content string, msgType domain.MessageType) (*domain.Message, error) {
	if err := s.checkMember(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}
	// PostgreSQL text cannot hold NUL, so such a send could never commit.
	if strings.ContainsRune(content, 0) || !utf8.ValidString(content) {
		return nil, domain.Invalid("content is not valid text")
	}
	if len(content) > s.maxContentBytes {
		return nil, &domain.Error{
			Kind:   domain.KindValidation,
			Reason: domain.ReasonTooLarge,
			Msg:    fmt.Sprintf("content exceeds %d bytes", s.maxContentBytes),
		}
	}

	t, ok := domain.ParseMessageType(string(msgType))
	if !ok || !t.ClientSendable() {
		return nil, domain.ErrInvalidType
	}

	return s.commit(ctx, &domain.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Type:     t,
		Content:  content,
	})
}

// AppendSystem stores a server-originated message. It skips the
// membership check but shares the ordering path with client sends.
func (s *MessageStore) AppendSystem(ctx context.Context, roomID, content string) (*domain.Message, error) {
	if content == "" {
		return nil, domain.ErrEmptyContent
	}
	return s.commit(ctx, &domain.Message{
		RoomID:  roomID,
		Type:    domain.MessageSystem,
		Content: content,
	})
}

// Forget drops the cached sequence state of a room.
func (s *MessageStore) Forget(roomID string) {
	s.locks.forget(roomID)
}

func (s *MessageStore) checkMember(ctx context.Context, roomID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	if _, err := s.participants.Membership(ctx, roomID, userID); err != nil {
		if errors.Is(err, domain.ErrNotParticipant) {
			observability.FromContext(ctx).Warn("rejected send from non participant",
				slog.String("user_id", userID),
				slog.String("room_id", roomID))
			return domain.ErrNotParticipant
		}
		return domain.Transient(fmt.Errorf("membership lookup: %w", err))
	}
	return nil
}

func (s *MessageStore) commit(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	slot, err := s.locks.acquire(waitCtx, msg.RoomID)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("waiting for room %s: %w", msg.RoomID, err))
	}
	defer slot.release()

	// Once persistence starts it runs to completion even if the sender
	// disconnects.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancelPersist()

	start := time.Now()
	if err := s.persist(persistCtx, slot, msg); err != nil {
		return nil, err
	}
	observability.AppendDuration.Observe(time.Since(start).Seconds())
	observability.MessagesAppended.WithLabelValues(string(msg.Type)).Inc()

	s.router.ToRoomAndUser(msg.RoomID, msg.SenderID, domain.Event{
		Type: domain.EventNewMessage,
		Data: domain.NewMessagePayload{RoomID: msg.RoomID, Message: msg},
	})
	return msg, nil
}

// persist assigns the next sequence number and stores msg. A conflict means
// the cache is stale, so the last sequence is reloaded and the write retried
// once.
func (s *MessageStore) persist(ctx context.Context, slot *roomSlot, msg *domain.Message) error {
	for attempt := 0; attempt < 2; attempt++ {
		if !slot.loaded {
			last, err := s.messages.LastSeq(ctx, msg.RoomID)
			if err != nil {
				return domain.Transient(fmt.Errorf("load last seq: %w", err))
			}
			slot.lastSeq = last
			slot.loaded = true
		}

		msg.Seq = slot.lastSeq + 1
		err := s.messages.Append(ctx, msg)
		if err == nil {
			slot.lastSeq = msg.Seq
			return nil
		}

		slot.loaded = false
		if !errors.Is(err, domain.ErrSeqConflict) {
			msg.Seq = 0
			slog.Error("failed to persist message",
				slog.String("room_id", msg.RoomID),
				slog.String("error", err.Error()))
			return domain.Transient(fmt.Errorf("persist message: %w", err))
		}
		slog.Warn("sequence conflict, reloading",
			slog.String("room_id", msg.RoomID),
			slog.Int64("seq", msg.Seq))
	}

	msg.Seq = 0
	return domain.Transient(domain.ErrSeqConflict)
}
