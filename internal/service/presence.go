package service

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"tutoring-chat/internal/observability"
)

const presenceShards = 32

// PresenceState is the per-user presence state.
type PresenceState uint8

const (
	Offline PresenceState = iota
	Online
	PendingOffline
)

func (s PresenceState) String() string {
	switch s {
	case Online:
		return "online"
	case PendingOffline:
		return "pending_offline"
	default:
		return "offline"
	}
}

type presenceEntry struct {
	conns    map[string]struct{}
	timer    *time.Timer
	gen      uint64
	lastSeen time.Time
}

type presenceShard struct {
	mu    sync.Mutex
	users map[string]*presenceEntry
}

// PresenceTracker owns online truth. A user is online while at least one
// connection is open; closing the last one starts a debounce window, and
// only if no connection reopens within it does the user go offline.
type PresenceTracker struct {
	shards   [presenceShards]presenceShard
	debounce time.Duration
	notifier PresenceNotifier
	now      func() time.Time
}

func NewPresenceTracker(debounce time.Duration, notifier PresenceNotifier) *PresenceTracker {
	t := &PresenceTracker{
		debounce: debounce,
		notifier: notifier,
		now:      time.Now,
	}
	for i := range t.shards {
		t.shards[i].users = make(map[string]*presenceEntry)
	}
	return t
}

func (t *PresenceTracker) shard(userID string) *presenceShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &t.shards[h.Sum32()%presenceShards]
}

// ConnectionOpened registers connID for userID. The first connection of an
// offline user emits an online transition; reopening during the debounce
// window cancels the pending offline and emits nothing.
func (t *PresenceTracker) ConnectionOpened(userID, connID string) {
	sh := t.shard(userID)
	sh.mu.Lock()

	e, ok := sh.users[userID]
	cameOnline := !ok
	if !ok {
		e = &presenceEntry{conns: make(map[string]struct{})}
		sh.users[userID] = e
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
		e.gen++
	}
	e.conns[connID] = struct{}{}

	if cameOnline {
		observability.UsersOnline.Inc()
		if t.notifier != nil {
			t.notifier.UserOnline(userID)
		}
	}
	sh.mu.Unlock()
}

// ConnectionClosed unregisters connID. Closing an unknown connection is a
// no-op.
func (t *PresenceTracker) ConnectionClosed(userID, connID string) {
	sh := t.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.users[userID]
	if !ok {
		return
	}
	if _, ok := e.conns[connID]; !ok {
		return
	}
	delete(e.conns, connID)
	if len(e.conns) > 0 || e.timer != nil {
		return
	}

	e.gen++
	gen := e.gen
	e.lastSeen = t.now()
	e.timer = time.AfterFunc(t.debounce, func() { t.expire(userID, gen) })
}

// expire completes PendingOffline -> Offline unless a reconnect bumped the
// generation in the meantime.
func (t *PresenceTracker) expire(userID string, gen uint64) {
	sh := t.shard(userID)
	sh.mu.Lock()
	e, ok := sh.users[userID]
	if !ok || e.gen != gen || len(e.conns) > 0 {
		sh.mu.Unlock()
		return
	}
	delete(sh.users, userID)
	observability.UsersOnline.Dec()
	if t.notifier != nil {
		t.notifier.UserOffline(userID, e.lastSeen)
	}
	sh.mu.Unlock()
}

// State returns the presence state of userID.
func (t *PresenceTracker) State(userID string) PresenceState {
	sh := t.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.users[userID]
	switch {
	case !ok:
		return Offline
	case len(e.conns) == 0:
		return PendingOffline
	default:
		return Online
	}
}

// IsOnline reports true for Online and PendingOffline users.
func (t *PresenceTracker) IsOnline(userID string) bool {
	return t.State(userID) != Offline
}

// Connections returns how many connections userID has open.
func (t *PresenceTracker) Connections(userID string) int {
	sh := t.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.users[userID]; ok {
		return len(e.conns)
	}
	return 0
}

// ListOnline returns every user that is not offline, sorted.
func (t *PresenceTracker) ListOnline() []string {
	var out []string
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for userID := range sh.users {
			out = append(out, userID)
		}
		sh.mu.Unlock()
	}
	sort.Strings(out)
	return out
}

// Stop cancels every pending offline transition. Presence is not persisted,
// so nothing is emitted.
func (t *PresenceTracker) Stop() {
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for _, e := range sh.users {
			if e.timer != nil {
				e.timer.Stop()
				e.timer = nil
				e.gen++
			}
		}
		sh.mu.Unlock()
	}
}
