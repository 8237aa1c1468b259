package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"tutoring-chat/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Command is one decoded inbound event. The set is closed; Dispatcher
// switches over every implementation.
type Command interface {
	isCommand()
}

type JoinChat struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

type LeaveChat struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

type SendMessage struct {
	RoomID  string `json:"roomId" validate:"required,max=128"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type Location struct {
	Lat      *float64 `json:"lat" validate:"required,latitude"`
	Lng      *float64 `json:"lng" validate:"required,longitude"`
	Accuracy *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
}

type ShareLocation struct {
	RoomID   string    `json:"roomId" validate:"required,max=128"`
	Location *Location `json:"location" validate:"required"`
}

// Typing covers both typing-start and typing-stop.
type Typing struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	Active bool   `json:"-"`
}

type MarkRead struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	UpTo   *int64 `json:"upTo" validate:"required,gte=0"`
}

// SignalKind is one of the call signaling events relayed between users.
type SignalKind string

const (
	SignalCallRequest  SignalKind = "call-request"
	SignalCallResponse SignalKind = "call-response"
	SignalOffer        SignalKind = "webrtc-offer"
	SignalAnswer       SignalKind = "webrtc-answer"
	SignalICECandidate SignalKind = "webrtc-ice-candidate"
)

// Signal relays Payload to every connection of To. It is never persisted.
type Signal struct {
	Kind    SignalKind      `json:"-"`
	To      string          `json:"to" validate:"required,max=128"`
	RoomID  string          `json:"roomId" validate:"max=128"`
	Payload json.RawMessage `json:"-"`
}

func (JoinChat) isCommand()      {}
func (LeaveChat) isCommand()     {}
func (SendMessage) isCommand()   {}
func (ShareLocation) isCommand() {}
func (Typing) isCommand()        {}
func (MarkRead) isCommand()      {}
func (Signal) isCommand()        {}

// Inbound event names.
const (
	inJoinChat      = "join-chat"
	inLeaveChat     = "leave-chat"
	inSendMessage   = "send-message"
	inShareLocation = "share-location"
	inTypingStart   = "typing-start"
	inTypingStop    = "typing-stop"
	inMarkRead      = "mark-messages-read"
)

type envelope struct {
	Event string          `json:"event" validate:"required,max=64"`
	Ref   string          `json:"ref" validate:"max=64"`
	Data  json.RawMessage `json:"data"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses one inbound frame. The returned ref is set whenever the
// envelope itself could be read, so errors can be correlated.
func Decode(frame []byte) (string, Command, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, domain.Invalid("frame is not a valid event envelope")
	}
	if err := validate.Struct(env); err != nil {
		return env.Ref, nil, validationError(err)
	}

	var (
		cmd Command
		err error
	)
	switch env.Event {
	case inJoinChat:
		var c JoinChat
		err = decodeData(env.Data, &c)
		cmd = c
	case inLeaveChat:
		var c LeaveChat
		err = decodeData(env.Data, &c)
		cmd = c
	case inSendMessage:
		var c SendMessage
		err = decodeData(env.Data, &c)
		cmd = c
	case inShareLocation:
		var c ShareLocation
		err = decodeData(env.Data, &c)
		cmd = c
	case inTypingStart, inTypingStop:
		c := Typing{Active: env.Event == inTypingStart}
		err = decodeData(env.Data, &c)
		cmd = c
	case inMarkRead:
		var c MarkRead
		err = decodeData(env.Data, &c)
		cmd = c
	case string(SignalCallRequest), string(SignalCallResponse), string(SignalOffer),
		string(SignalAnswer), string(SignalICECandidate):
		c := Signal{Kind: SignalKind(env.Event), Payload: env.Data}
		err = decodeData(env.Data, &c)
		cmd = c
	default:
		return env.Ref, nil, domain.Invalid(fmt.Sprintf("unknown event %q", env.Event))
	}
	if err != nil {
		return env.Ref, nil, err
	}
	return env.Ref, cmd, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return domain.Invalid("event data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.Invalid("event data is malformed")
	}
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return domain.Invalid("event data is invalid")
	}
	fe := fields[0]
	return domain.Invalid(fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag()))
}
