package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"tutoring-chat/internal/domain"
	"tutoring-chat/internal/middleware"
	ws "tutoring-chat/internal/websocket"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades admitted requests into chat sessions
type WebSocketHandler struct {
	gateway  *ws.Gateway
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler that only upgrades requests whose
// Origin is in allowedOrigins.
func NewWebSocketHandler(gateway *ws.Gateway, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middleware.CheckOrigin(allowedOrigins),
		},
	}
}

// HandleConnection verifies the credential before upgrading. A rejected
// request never reaches the upgrader, so no session state is created.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	credential := middleware.ExtractCredential(r)
	if credential == "" {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrInvalidCredential)
		return
	}

	id, err := h.gateway.Admit(r.Context(), credential)
	if err != nil {
		var e *domain.Error
		if errors.As(err, &e) && e.Kind == domain.KindAuth {
			middleware.WriteError(w, http.StatusUnauthorized, err)
			return
		}
		w.Header().Set("Retry-After", "1")
		middleware.WriteError(w, http.StatusServiceUnavailable, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the response.
		slog.Warn("websocket upgrade failed",
			slog.String("user_id", id.UserID),
			slog.String("error", err.Error()))
		return
	}

	// The session outlives the request but keeps its values.
	h.gateway.Attach(context.WithoutCancel(r.Context()), conn, id)
}
