package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a rejection by who is at fault and whether a retry helps.
type Kind uint8

const (
	KindAuth Kind = iota + 1
	KindAuthorization
	KindValidation
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Reason is the machine readable code sent to clients in error events.
type Reason string

const (
	ReasonInvalidCredential Reason = "invalid_credential"
	ReasonUnauthorized      Reason = "unauthorized"
	ReasonNotJoined         Reason = "not_joined"
	ReasonEmptyContent      Reason = "empty_content"
	ReasonTooLarge          Reason = "too_large"
	ReasonInvalidType       Reason = "invalid_type"
	ReasonInvalidPayload    Reason = "invalid_payload"
	ReasonUnavailable       Reason = "unavailable"
	ReasonRateLimited       Reason = "rate_limited"
)

// Error is a structured rejection. Two Errors match under errors.Is when
// their Kind and Reason are equal, so the sentinels below can be compared
// against errors that carry extra detail.
type Error struct {
	Kind   Kind
	Reason Reason
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

var (
	ErrInvalidCredential = &Error{Kind: KindAuth, Reason: ReasonInvalidCredential, Msg: "invalid or expired credential"}
	ErrNotParticipant    = &Error{Kind: KindAuthorization, Reason: ReasonUnauthorized, Msg: "user is not a participant of this room"}
	ErrNotJoined         = &Error{Kind: KindAuthorization, Reason: ReasonNotJoined, Msg: "session has not joined this room"}
	ErrEmptyContent      = &Error{Kind: KindValidation, Reason: ReasonEmptyContent, Msg: "message content is empty"}
	ErrTooLarge          = &Error{Kind: KindValidation, Reason: ReasonTooLarge, Msg: "message content is too large"}
	ErrInvalidType       = &Error{Kind: KindValidation, Reason: ReasonInvalidType, Msg: "unrecognized message type"}
	ErrInvalidPayload    = &Error{Kind: KindValidation, Reason: ReasonInvalidPayload, Msg: "malformed event payload"}
	ErrUnavailable       = &Error{Kind: KindTransient, Reason: ReasonUnavailable, Msg: "temporarily unavailable, retry"}
	ErrRateLimited       = &Error{Kind: KindTransient, Reason: ReasonRateLimited, Msg: "too many events, slow down"}
)

// Invalid returns a validation error for a malformed payload with detail.
func Invalid(msg string) error {
	return &Error{Kind: KindValidation, Reason: ReasonInvalidPayload, Msg: msg}
}

// Transient wraps an infrastructure failure so callers see ErrUnavailable.
func Transient(err error) error {
	return &Error{Kind: KindTransient, Reason: ReasonUnavailable, Msg: ErrUnavailable.Msg, Err: err}
}

// AsError extracts the structured error from err. Unstructured errors are
// reported as transient so nothing reaches a client unclassified.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindTransient, Reason: ReasonUnavailable, Msg: ErrUnavailable.Msg, Err: err}
}
