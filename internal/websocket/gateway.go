package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tutoring-chat/internal/domain"
	"tutoring-chat/internal/identity"
	"tutoring-chat/internal/observability"
	"tutoring-chat/internal/service"

	"github.com/gorilla/websocket"
)

// Gateway admits connections. Nothing is allocated for a credential that
// fails verification.
type Gateway struct {
	verifier      identity.Verifier
	hub           *Hub
	presence      *service.PresenceTracker
	fanout        *service.PresenceFanout
	handler       FrameHandler
	verifyTimeout time.Duration
	sessionOpts   SessionOptions
}

// GatewayConfig tunes admission and the sessions it creates.
type GatewayConfig struct {
	VerifyTimeout time.Duration
	Session       SessionOptions
}

func NewGateway(verifier identity.Verifier, hub *Hub, presence *service.PresenceTracker,
	fanout *service.PresenceFanout, handler FrameHandler, cfg GatewayConfig) *Gateway {
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 3 * time.Second
	}
	return &Gateway{
		verifier:      verifier,
		hub:           hub,
		presence:      presence,
		fanout:        fanout,
		handler:       handler,
		verifyTimeout: cfg.VerifyTimeout,
		sessionOpts:   cfg.Session,
	}
}

// Admit verifies credential under the verify timeout. It returns
// domain.ErrInvalidCredential (or a more detailed auth error) for bad
// credentials and a transient error when the verifier could not answer.
func (g *Gateway) Admit(ctx context.Context, credential string) (identity.Identity, error) {
	if credential == "" {
		observability.WebSocketAdmissionsTotal.WithLabelValues("rejected").Inc()
		return identity.Identity{}, domain.ErrInvalidCredential
	}

	ctx, cancel := context.WithTimeout(ctx, g.verifyTimeout)
	defer cancel()

	id, err := g.verifier.Verify(ctx, credential)
	if err == nil && id.UserID == "" {
		err = domain.ErrInvalidCredential
	}
	if err != nil {
		var e *domain.Error
		if errors.As(err, &e) && e.Kind == domain.KindAuth {
			observability.WebSocketAdmissionsTotal.WithLabelValues("rejected").Inc()
			slog.Warn("connection refused", slog.String("reason", string(e.Reason)))
			return identity.Identity{}, err
		}
		observability.WebSocketAdmissionsTotal.WithLabelValues("unavailable").Inc()
		slog.Error("identity verification failed", slog.String("error", err.Error()))
		if errors.Is(err, domain.ErrUnavailable) {
			return identity.Identity{}, err
		}
		return identity.Identity{}, domain.Transient(fmt.Errorf("verify credential: %w", err))
	}

	observability.WebSocketAdmissionsTotal.WithLabelValues("admitted").Inc()
	return id, nil
}

// Attach binds an upgraded connection to an admitted identity, registers
// presence and starts the pumps. ctx must outlive the HTTP request.
func (g *Gateway) Attach(ctx context.Context, conn *websocket.Conn, id identity.Identity) *Session {
	s := NewSession(ctx, conn, id.UserID, g.sessionOpts)

	g.hub.AddPeer(s)
	g.presence.ConnectionOpened(s.UserID(), s.ID())

	if g.fanout != nil {
		snapshot, err := g.fanout.Snapshot(s.Context(), s.UserID(), g.presence)
		if err != nil {
			slog.Warn("failed to build presence snapshot",
				slog.String("user_id", s.UserID()),
				slog.String("error", err.Error()))
		} else {
			s.Reply(domain.Event{Type: domain.EventPresenceSnapshot, Data: snapshot})
		}
	}

	observability.FromContext(s.Context()).Info("session opened")
	s.Run(g.handler, g.release)
	return s
}

// release undoes Attach once the read pump has stopped.
func (g *Gateway) release(s *Session) {
	rooms := g.hub.RemovePeer(s)
	g.presence.ConnectionClosed(s.UserID(), s.ID())

	observability.FromContext(s.Context()).Info("session closed", slog.Int("rooms", len(rooms)))
}
