package middleware

import (
	"encoding/json"
	"net/http"

	"tutoring-chat/internal/domain"
)

// WriteError renders err as the same {reason, message} body clients get
// over the websocket.
func WriteError(w http.ResponseWriter, status int, err error) {
	e := domain.AsError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.ErrorPayload{Reason: e.Reason, Message: e.Msg})
}
