package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"tutoring-chat/internal/domain"
	"tutoring-chat/internal/observability"
)

// Hub is the live index of connected sessions and the broadcast router on
// top of it. It keeps two indexes: room -> joined sessions, which only
// decides who receives room broadcasts, and user -> open sessions, used for
// personal delivery. Membership truth lives in the participant directory.
type Hub struct {
	roomsMu   sync.RWMutex
	rooms     map[string]map[string]domain.Peer // roomID -> connID -> peer
	peerRooms map[string]map[string]struct{}    // connID -> joined roomIDs
	closed    map[string]struct{}                // dropped rooms; rooms never reopen

	usersMu sync.RWMutex
	users   map[string]map[string]domain.Peer // userID -> connID -> peer
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[string]map[string]domain.Peer),
		peerRooms: make(map[string]map[string]struct{}),
		closed:    make(map[string]struct{}),
		users:     make(map[string]map[string]domain.Peer),
	}
}

// AddPeer indexes an admitted session under its user.
func (h *Hub) AddPeer(p domain.Peer) {
	h.usersMu.Lock()
	conns := h.users[p.UserID()]
	if conns == nil {
		conns = make(map[string]domain.Peer)
		h.users[p.UserID()] = conns
	}
	conns[p.ID()] = p
	h.usersMu.Unlock()

	observability.WebSocketConnectionsActive.Inc()
}

// RemovePeer drops a session from every index. It returns the rooms the
// session had joined.
func (h *Hub) RemovePeer(p domain.Peer) []string {
	h.usersMu.Lock()
	if conns, ok := h.users[p.UserID()]; ok {
		if _, ok := conns[p.ID()]; ok {
			delete(conns, p.ID())
			observability.WebSocketConnectionsActive.Dec()
		}
		if len(conns) == 0 {
			delete(h.users, p.UserID())
		}
	}
	h.usersMu.Unlock()

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	joined := h.peerRooms[p.ID()]
	delete(h.peerRooms, p.ID())

	rooms := make([]string, 0, len(joined))
	for roomID := range joined {
		rooms = append(rooms, roomID)
		h.detachLocked(roomID, p)
	}
	return rooms
}

// Attach adds the session to a room's live index. It reports whether the
// session was newly attached; attaching twice keeps one registration. A
// room removed by DropRoom refuses new sessions with
// domain.ErrNotParticipant, so a join that raced a deactivation cannot
// leave a stale entry.
func (h *Hub) Attach(roomID string, p domain.Peer) (bool, error) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if _, ok := h.closed[roomID]; ok {
		return false, domain.ErrNotParticipant
	}

	peers := h.rooms[roomID]
	if peers == nil {
		peers = make(map[string]domain.Peer)
		h.rooms[roomID] = peers
	}
	if _, ok := peers[p.ID()]; ok {
		return false, nil
	}
	peers[p.ID()] = p

	joined := h.peerRooms[p.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		h.peerRooms[p.ID()] = joined
	}
	joined[roomID] = struct{}{}
	return true, nil
}

// Detach removes the session from a room's live index. Detaching a session
// that never joined is a no-op.
func (h *Hub) Detach(roomID string, p domain.Peer) bool {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if joined, ok := h.peerRooms[p.ID()]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(h.peerRooms, p.ID())
		}
	}
	return h.detachLocked(roomID, p)
}

func (h *Hub) detachLocked(roomID string, p domain.Peer) bool {
	peers, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := peers[p.ID()]; !ok {
		return false
	}
	delete(peers, p.ID())
	if len(peers) == 0 {
		delete(h.rooms, roomID)
	}
	return true
}

// Attached reports whether the session is in the room's live index.
func (h *Hub) Attached(roomID string, p domain.Peer) bool {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()

	_, ok := h.rooms[roomID][p.ID()]
	return ok
}

// DropRoom evicts every session from a room's live index and closes it to
// later attaches.
func (h *Hub) DropRoom(roomID string) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	h.closed[roomID] = struct{}{}

	for connID := range h.rooms[roomID] {
		if joined, ok := h.peerRooms[connID]; ok {
			delete(joined, roomID)
			if len(joined) == 0 {
				delete(h.peerRooms, connID)
			}
		}
	}
	delete(h.rooms, roomID)
}

// RoomSize returns how many sessions are joined to a room.
func (h *Hub) RoomSize(roomID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

// UserConnections returns how many sessions a user has open.
func (h *Hub) UserConnections(userID string) int {
	h.usersMu.RLock()
	defer h.usersMu.RUnlock()
	return len(h.users[userID])
}

// ToRoom delivers ev to every session joined to roomID.
func (h *Hub) ToRoom(roomID string, ev domain.Event) int {
	return h.deliver(h.roomPeers(roomID, nil), ev)
}

// ToRoomExcept delivers ev to every joined session other than except.
func (h *Hub) ToRoomExcept(roomID string, except domain.Peer, ev domain.Event) int {
	return h.deliver(h.roomPeers(roomID, except), ev)
}

// ToUser delivers ev to every open session of userID regardless of room.
func (h *Hub) ToUser(userID string, ev domain.Event) int {
	return h.deliver(h.userPeers(userID), ev)
}

// ToRoomAndUser delivers ev to the room and to the user's sessions that are
// not joined to it, each session exactly once.
func (h *Hub) ToRoomAndUser(roomID, userID string, ev domain.Event) int {
	targets := h.roomPeers(roomID, nil)
	seen := make(map[string]struct{}, len(targets))
	for _, p := range targets {
		seen[p.ID()] = struct{}{}
	}
	for _, p := range h.userPeers(userID) {
		if _, ok := seen[p.ID()]; !ok {
			targets = append(targets, p)
		}
	}
	return h.deliver(targets, ev)
}

// ToPeer delivers ev to a single session.
func (h *Hub) ToPeer(p domain.Peer, ev domain.Event) bool {
	return h.deliver([]domain.Peer{p}, ev) == 1
}

func (h *Hub) roomPeers(roomID string, except domain.Peer) []domain.Peer {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()

	peers := h.rooms[roomID]
	out := make([]domain.Peer, 0, len(peers))
	for _, p := range peers {
		if except != nil && p.ID() == except.ID() {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (h *Hub) userPeers(userID string) []domain.Peer {
	h.usersMu.RLock()
	defer h.usersMu.RUnlock()

	conns := h.users[userID]
	out := make([]domain.Peer, 0, len(conns))
	for _, p := range conns {
		out = append(out, p)
	}
	return out
}

// deliver marshals ev once and hands the frame to each target without
// blocking. Undeliverable frames are dropped for that session.
func (h *Hub) deliver(targets []domain.Peer, ev domain.Event) int {
	if len(targets) == 0 {
		return 0
	}

	frame, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal event",
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()))
		return 0
	}

	delivered := 0
	for _, p := range targets {
		if p.Deliver(frame) {
			delivered++
			continue
		}
		observability.BroadcastDropped.WithLabelValues(string(ev.Type)).Inc()
		slog.Warn("dropped event for session",
			slog.String("event", string(ev.Type)),
			slog.String("conn_id", p.ID()),
			slog.String("user_id", p.UserID()))
	}
	return delivered
}
