package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tutoring-chat/internal/domain"
	"tutoring-chat/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventApplicationAccepted = "application.accepted"
	EventRoomDeactivated     = "room.deactivated"
	notificationPrefix       = "notification."

	defaultHandleTimeout = 10 * time.Second
)

// errMalformed marks deliveries that can never succeed and go to the
// dead-letter queue instead of being retried.
var errMalformed = errors.New("malformed platform event")

// PlatformEvent is the envelope published by the rest of the platform on
// the platform.events exchange.
type PlatformEvent struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"room_id,omitempty"`
	Participants []string        `json:"participants,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	Kind         string          `json:"kind,omitempty"`
	Title        string          `json:"title,omitempty"`
	Body         string          `json:"body,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// RoomLifecycle opens and closes rooms in response to platform workflow.
type RoomLifecycle interface {
	OpenRoom(ctx context.Context, roomID string, participants []string) error
	Deactivate(ctx context.Context, roomID string) error
}

// UserNotifier reaches every live connection of a user.
type UserNotifier interface {
	ToUser(userID string, ev domain.Event) int
}

// DeliverySource hands out the deliveries to consume.
type DeliverySource interface {
	ConsumePlatformEvents() (<-chan amqp.Delivery, error)
}

// PlatformConsumer applies platform events to the chat core.
type PlatformConsumer struct {
	source  DeliverySource
	rooms   RoomLifecycle
	users   UserNotifier
	timeout time.Duration
}

func NewPlatformConsumer(source DeliverySource, rooms RoomLifecycle, users UserNotifier, timeout time.Duration) *PlatformConsumer {
	if timeout <= 0 {
		timeout = defaultHandleTimeout
	}
	return &PlatformConsumer{source: source, rooms: rooms, users: users, timeout: timeout}
}

// Run consumes until ctx is done. A closed delivery channel means the broker
// went away and is reported as an error.
func (c *PlatformConsumer) Run(ctx context.Context) error {
	msgs, err := c.source.ConsumePlatformEvents()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping platform event consumer")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("platform event channel closed")
			}
			c.process(ctx, d)
		}
	}
}

func (c *PlatformConsumer) process(ctx context.Context, d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	eventType, err := c.HandleEvent(ctx, d.RoutingKey, d.Body)
	logger := slog.With(
		slog.String("type", eventType),
		slog.String("routing_key", d.RoutingKey))

	switch {
	case err == nil:
		observability.PlatformEventsConsumed.WithLabelValues(eventType, "ok").Inc()
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("failed to ack platform event", slog.String("error", ackErr.Error()))
		}
	case retryable(err):
		observability.PlatformEventsConsumed.WithLabelValues(eventType, "requeued").Inc()
		logger.Warn("platform event failed, requeueing", slog.String("error", err.Error()))
		if nackErr := d.Nack(false, true); nackErr != nil {
			logger.Error("failed to nack platform event", slog.String("error", nackErr.Error()))
		}
	default:
		observability.PlatformEventsConsumed.WithLabelValues(eventType, "dead").Inc()
		logger.Error("dropping platform event",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(d.Body)))
		if nackErr := d.Nack(false, false); nackErr != nil {
			logger.Error("failed to nack platform event", slog.String("error", nackErr.Error()))
		}
	}
}

// HandleEvent decodes body and applies it. It returns the event type it
// resolved so callers can label outcomes even on failure.
func (c *PlatformConsumer) HandleEvent(ctx context.Context, routingKey string, body []byte) (string, error) {
	var ev PlatformEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "unknown", fmt.Errorf("%w: %v", errMalformed, err)
	}
	if ev.Type == "" {
		ev.Type = routingKey
	}

	switch {
	case ev.Type == EventApplicationAccepted:
		if ev.RoomID == "" {
			return ev.Type, fmt.Errorf("%w: room_id is required", errMalformed)
		}
		return ev.Type, c.rooms.OpenRoom(ctx, ev.RoomID, ev.Participants)

	case ev.Type == EventRoomDeactivated:
		if ev.RoomID == "" {
			return ev.Type, fmt.Errorf("%w: room_id is required", errMalformed)
		}
		return ev.Type, c.rooms.Deactivate(ctx, ev.RoomID)

	case strings.HasPrefix(ev.Type, notificationPrefix):
		if ev.UserID == "" {
			return ev.Type, fmt.Errorf("%w: user_id is required", errMalformed)
		}
		kind := ev.Kind
		if kind == "" {
			kind = strings.TrimPrefix(ev.Type, notificationPrefix)
		}
		// Offline users miss notifications; the platform keeps its own inbox.
		c.users.ToUser(ev.UserID, domain.Event{
			Type: domain.EventNotification,
			Data: domain.NotificationPayload{Kind: kind, Title: ev.Title, Body: ev.Body, Data: ev.Data},
		})
		return "notification", nil
	}

	return "unknown", fmt.Errorf("%w: unsupported type %q", errMalformed, ev.Type)
}

// retryable reports whether redelivery could succeed.
func retryable(err error) bool {
	if errors.Is(err, errMalformed) {
		return false
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Kind == domain.KindTransient
	}
	return true
}
