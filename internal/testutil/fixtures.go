package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"tutoring-chat/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// TestJWTSecret signs tokens produced by NewTestJWT.
const TestJWTSecret = "test-secret-with-at-least-32-characters!"

// RoomOptions allows customizing room fixture creation
type RoomOptions struct {
	ID           string
	Participants []string
	Active       bool
	CreatedAt    time.Time
}

// NewTestRoom creates an active two-party room with sensible defaults
// Pass options to override specific fields
func NewTestRoom(opts ...func(*RoomOptions)) *domain.Room {
	o := &RoomOptions{
		ID:           nextID("room"),
		Participants: []string{nextID("student"), nextID("teacher")},
		Active:       true,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.Room{
		ID:           o.ID,
		Participants: o.Participants,
		Active:       o.Active,
		CreatedAt:    o.CreatedAt,
	}
}

// WithRoomID sets the room ID
func WithRoomID(id string) func(*RoomOptions) {
	return func(o *RoomOptions) {
		o.ID = id
	}
}

// WithParticipants sets the founding participants
func WithParticipants(userIDs ...string) func(*RoomOptions) {
	return func(o *RoomOptions) {
		o.Participants = userIDs
	}
}

// WithInactive marks the room as deactivated
func WithInactive() func(*RoomOptions) {
	return func(o *RoomOptions) {
		o.Active = false
	}
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	RoomID    string
	Seq       int64
	SenderID  string
	Type      domain.MessageType
	Content   string
	CreatedAt time.Time
}

// NewTestMessage creates a text message with sensible defaults
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		RoomID:   "room-1",
		Seq:      1,
		SenderID: "user-1",
		Type:     domain.MessageText,
		Content:  "hello",
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.Message{
		RoomID:    o.RoomID,
		Seq:       o.Seq,
		SenderID:  o.SenderID,
		Type:      o.Type,
		Content:   o.Content,
		CreatedAt: o.CreatedAt,
	}
}

// WithMessageRoomID sets the message room
func WithMessageRoomID(roomID string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.RoomID = roomID
	}
}

// WithSeq sets the message sequence number
func WithSeq(seq int64) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Seq = seq
	}
}

// WithSender sets the sender
func WithSender(userID string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.SenderID = userID
	}
}

// WithContent sets the content
func WithContent(content string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Content = content
	}
}

// WithType sets the message type
func WithType(t domain.MessageType) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Type = t
	}
}

// NewTestCredential creates an opaque session token valid for an hour
func NewTestCredential(userID string) *domain.Credential {
	return &domain.Credential{
		Token:     nextID("token"),
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
}

// NewTestJWT signs an HS256 token for userID with TestJWTSecret
func NewTestJWT(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}
