package domain

import (
	"encoding/json"
	"time"
)

// EventType names an outbound event on the wire.
type EventType string

const (
	EventNewMessage       EventType = "new-message"
	EventMessagesRead     EventType = "messages-read"
	EventTypingStart      EventType = "typing-start"
	EventTypingStop       EventType = "typing-stop"
	EventUserOnline       EventType = "user-online"
	EventUserOffline      EventType = "user-offline"
	EventPresenceSnapshot EventType = "presence-snapshot"
	EventChatJoined       EventType = "chat-joined"
	EventChatLeft         EventType = "chat-left"
	EventRoomCreated      EventType = "room-created"
	EventRoomDeactivated  EventType = "room-deactivated"
	EventNotification     EventType = "notification"
	EventError            EventType = "error"
)

// Event is one outbound frame. Ref echoes the client's correlation id on
// direct replies.
type Event struct {
	Type EventType `json:"event"`
	Ref  string    `json:"ref,omitempty"`
	Data any       `json:"data,omitempty"`
}

// Peer is one live authenticated connection as seen by the components that
// deliver to it. Deliver must not block; it reports false when the frame
// was dropped.
type Peer interface {
	ID() string
	UserID() string
	Deliver(frame []byte) bool
}

type NewMessagePayload struct {
	RoomID  string   `json:"roomId"`
	Message *Message `json:"message"`
}

type MessagesReadPayload struct {
	RoomID string `json:"roomId"`
	UpTo   int64  `json:"upTo"`
	ReadBy string `json:"readBy"`
}

type TypingPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type PresencePayload struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type PresenceSnapshotPayload struct {
	Peers []PresencePayload `json:"peers"`
}

type ChatJoinedPayload struct {
	RoomID   string `json:"roomId"`
	LastSeq  int64  `json:"lastSeq"`
	LastRead int64  `json:"lastRead"`
	Unread   int64  `json:"unread"`
}

type RoomPayload struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants,omitempty"`
}

type NotificationPayload struct {
	Kind  string          `json:"kind"`
	Title string          `json:"title,omitempty"`
	Body  string          `json:"body,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SignalPayload carries call signaling from one user to another. The
// server stamps From; Data is forwarded untouched.
type SignalPayload struct {
	From   string          `json:"from"`
	RoomID string          `json:"roomId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type ErrorPayload struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// ErrorEvent converts any error into the event reported to the caller.
func ErrorEvent(ref string, err error) Event {
	e := AsError(err)
	msg := e.Msg
	if msg == "" {
		msg = string(e.Reason)
	}
	return Event{Type: EventError, Ref: ref, Data: ErrorPayload{Reason: e.Reason, Message: msg}}
}
