package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"tutoring-chat/internal/domain"
	"tutoring-chat/internal/observability"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second // Must be less than pongWait

	defaultReadLimit  = 16 * 1024
	defaultSendBuffer = 256
)

// FrameHandler consumes inbound frames of a session.
type FrameHandler interface {
	HandleFrame(ctx context.Context, s *Session, frame []byte)
}

// SessionOptions tunes a session's buffers and inbound rate.
type SessionOptions struct {
	EventRate  float64
	EventBurst int
	ReadLimit  int64
	SendBuffer int
}

// Session is one authenticated live connection. Outbound frames are queued
// on send and written by WritePump; a full queue marks the session as too
// slow and closes it.
type Session struct {
	id      string
	userID  string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	opts    SessionOptions

	closed    atomic.Bool
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewSession binds conn to userID under a fresh connection id.
func NewSession(ctx context.Context, conn *websocket.Conn, userID string, opts SessionOptions) *Session {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	limit := rate.Inf
	if opts.EventRate > 0 {
		limit = rate.Limit(opts.EventRate)
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = 1
	}

	id := uuid.NewString()
	ctx = observability.WithConnID(observability.WithUserID(ctx, userID), id)
	sessionCtx, cancel := context.WithCancel(ctx)

	return &Session{
		id:        id,
		userID:    userID,
		conn:      conn,
		send:      make(chan []byte, opts.SendBuffer),
		limiter:   rate.NewLimiter(limit, opts.EventBurst),
		opts:      opts,
		ctx:       sessionCtx,
		ctxCancel: cancel,
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// Deliver queues frame without blocking.
func (s *Session) Deliver(frame []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		slog.Warn("send queue full, closing slow session",
			slog.String("conn_id", s.id),
			slog.String("user_id", s.userID))
		s.Close()
		return false
	}
}

// Reply queues ev for this session only.
func (s *Session) Reply(ev domain.Event) bool {
	frame, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal reply",
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()))
		return false
	}
	return s.Deliver(frame)
}

// ReadPump reads frames until the connection fails and hands each one to
// handler. onClose runs exactly once after the read loop ends.
func (s *Session) ReadPump(handler FrameHandler, onClose func(*Session)) {
	defer func() {
		s.Close()
		if onClose != nil {
			onClose(s)
		}
	}()

	s.conn.SetReadLimit(s.opts.ReadLimit)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("conn_id", s.id))
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("conn_id", s.id),
					slog.String("user_id", s.userID))
			}
			return
		}

		if !s.limiter.Allow() {
			observability.EventsRejected.WithLabelValues(string(domain.ReasonRateLimited)).Inc()
			s.Reply(domain.ErrorEvent("", domain.ErrRateLimited))
			continue
		}

		handler.HandleFrame(s.ctx, s, frame)
	}
}

// WritePump pumps queued frames to the connection and keeps it alive with
// pings.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// write is only called from WritePump, the connection's single writer.
func (s *Session) write(messageType int, data []byte) error {
	if s.closed.Load() {
		return websocket.ErrCloseSent
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("failed to set write deadline",
			slog.String("error", err.Error()),
			slog.String("conn_id", s.id))
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// Close cancels the session's context. It never blocks, so it is safe to
// call from delivery paths; WritePump closes the network connection.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.ctxCancel()
	}
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Run starts both pumps. It returns immediately.
func (s *Session) Run(handler FrameHandler, onClose func(*Session)) {
	go s.WritePump()
	go s.ReadPump(handler, onClose)
}
