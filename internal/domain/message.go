package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSeqConflict is returned by a MessageRepository when the sequence number
// of an appended message is already taken in its room.
var ErrSeqConflict = errors.New("message sequence already assigned")

// MessageType tags the payload carried by a message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
	MessageLocation MessageType = "location"
	MessageSystem   MessageType = "system"
)

// ParseMessageType maps a wire tag onto the closed set of types. An empty
// tag means text.
func ParseMessageType(s string) (MessageType, bool) {
	switch MessageType(s) {
	case "", MessageText:
		return MessageText, true
	case MessageImage:
		return MessageImage, true
	case MessageFile:
		return MessageFile, true
	case MessageLocation:
		return MessageLocation, true
	case MessageSystem:
		return MessageSystem, true
	}
	return "", false
}

// ClientSendable reports whether clients may send this type. System
// messages are only ever produced by the server.
func (t MessageType) ClientSendable() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageLocation:
		return true
	case MessageSystem:
		return false
	}
	return false
}

// Message is one entry of a room's ordered log. Seq is the message id
// within its room.
type Message struct {
	RoomID    string      `json:"room_id"`
	Seq       int64       `json:"seq"`
	SenderID  string      `json:"sender_id,omitempty"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// ReadBy reports whether a participant with the given watermark has read m.
func (m *Message) ReadBy(watermark int64) bool {
	return m.Seq <= watermark
}

// MessageRepository is the durable log behind the message store.
// Append must persist the message and advance the sender's watermark
// atomically.
type MessageRepository interface {
	Append(ctx context.Context, msg *Message) error
	LastSeq(ctx context.Context, roomID string) (int64, error)
	CountAfter(ctx context.Context, roomID string, seq int64) (int64, error)
}
