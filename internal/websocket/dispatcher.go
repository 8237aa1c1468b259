package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"tutoring-chat/internal/domain"
	"tutoring-chat/internal/observability"
	"tutoring-chat/internal/service"
)

// Dispatcher routes decoded commands to the component that owns them and
// reports every rejection back to the originating session.
type Dispatcher struct {
	hub      *Hub
	registry *service.RoomRegistry
	store    *service.MessageStore
	reads    *service.ReadStateTracker
}

func NewDispatcher(hub *Hub, registry *service.RoomRegistry, store *service.MessageStore, reads *service.ReadStateTracker) *Dispatcher {
	return &Dispatcher{
		hub:      hub,
		registry: registry,
		store:    store,
		reads:    reads,
	}
}

// HandleFrame decodes and dispatches one inbound frame.
func (d *Dispatcher) HandleFrame(ctx context.Context, s *Session, frame []byte) {
	ref, cmd, err := Decode(frame)
	if err == nil {
		err = d.Dispatch(ctx, s, ref, cmd)
	}
	if err != nil {
		d.reject(ctx, s, ref, err)
	}
}

// Dispatch runs cmd on behalf of p. Direct replies go to p only and echo
// ref.
func (d *Dispatcher) Dispatch(ctx context.Context, p domain.Peer, ref string, cmd Command) error {
	switch c := cmd.(type) {
	case JoinChat:
		joined, err := d.registry.Join(ctx, p, c.RoomID)
		if err != nil {
			return err
		}
		d.hub.ToPeer(p, domain.Event{Type: domain.EventChatJoined, Ref: ref, Data: joined})
		return nil

	case LeaveChat:
		left := d.registry.Leave(p, c.RoomID)
		d.hub.ToPeer(p, domain.Event{Type: domain.EventChatLeft, Ref: ref, Data: left})
		return nil

	case SendMessage:
		_, err := d.store.Append(ctx, c.RoomID, p.UserID(), c.Content, domain.MessageType(c.Type))
		return err

	case ShareLocation:
		content, err := json.Marshal(c.Location)
		if err != nil {
			return domain.Invalid("location is not encodable")
		}
		_, err = d.store.Append(ctx, c.RoomID, p.UserID(), string(content), domain.MessageLocation)
		return err

	case Typing:
		if !d.hub.Attached(c.RoomID, p) {
			return domain.ErrNotJoined
		}
		evType := domain.EventTypingStop
		if c.Active {
			evType = domain.EventTypingStart
		}
		d.hub.ToRoomExcept(c.RoomID, p, domain.Event{
			Type: evType,
			Data: domain.TypingPayload{RoomID: c.RoomID, UserID: p.UserID()},
		})
		return nil

	case MarkRead:
		_, err := d.reads.MarkRead(ctx, p.UserID(), c.RoomID, *c.UpTo)
		return err

	case Signal:
		d.hub.ToUser(c.To, domain.Event{
			Type: domain.EventType(c.Kind),
			Data: domain.SignalPayload{From: p.UserID(), RoomID: c.RoomID, Data: c.Payload},
		})
		return nil
	}

	return domain.Invalid("unsupported command")
}

func (d *Dispatcher) reject(ctx context.Context, p domain.Peer, ref string, err error) {
	e := domain.AsError(err)
	observability.EventsRejected.WithLabelValues(string(e.Reason)).Inc()

	logger := observability.FromContext(ctx)
	if e.Kind == domain.KindTransient {
		logger.Warn("event failed", slog.String("reason", string(e.Reason)), slog.String("error", err.Error()))
	} else {
		logger.Debug("event rejected", slog.String("reason", string(e.Reason)), slog.String("error", err.Error()))
	}

	d.hub.ToPeer(p, domain.ErrorEvent(ref, err))
}
