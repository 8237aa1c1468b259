package service

import (
	"context"
	"sync"
)

// roomSlot serializes appends for one room. The sequence cache is only
// read or written while the slot is held.
type roomSlot struct {
	sem     chan struct{}
	lastSeq int64
	loaded  bool
}

// roomLocks hands out one slot per room so unrelated rooms never contend.
type roomLocks struct {
	mu    sync.Mutex
	slots map[string]*roomSlot
}

func newRoomLocks() *roomLocks {
	return &roomLocks{slots: make(map[string]*roomSlot)}
}

func (l *roomLocks) slot(roomID string) *roomSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[roomID]
	if !ok {
		s = &roomSlot{sem: make(chan struct{}, 1)}
		l.slots[roomID] = s
	}
	return s
}

// acquire blocks until the room's slot is free or ctx is done.
func (l *roomLocks) acquire(ctx context.Context, roomID string) (*roomSlot, error) {
	s := l.slot(roomID)
	select {
	case s.sem <- struct{}{}:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *roomSlot) release() {
	<-s.sem
}

// forget drops the slot of a room that will not receive appends anymore.
// A holder keeps its slot; the next acquire starts a fresh one.
func (l *roomLocks) forget(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.slots, roomID)
}
