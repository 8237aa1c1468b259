package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tutoring-chat/internal/domain"
)

// PresenceFanout tells a user's conversation peers about presence changes
// and keeps last-seen times for offline users. Lookups run off the caller's
// goroutine so the tracker never waits on the database. Transitions of one
// user are fanned out one at a time in arrival order, so peers end on the
// tracker's latest state.
type PresenceFanout struct {
	participants domain.ParticipantRepository
	router       Broadcaster
	lastSeen     LastSeenStore
	timeout      time.Duration

	mu     sync.Mutex
	queues map[string][]func(ctx context.Context)
	wg     sync.WaitGroup
}

func NewPresenceFanout(participants domain.ParticipantRepository, router Broadcaster, lastSeen LastSeenStore, timeout time.Duration) *PresenceFanout {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PresenceFanout{
		participants: participants,
		router:       router,
		lastSeen:     lastSeen,
		timeout:      timeout,
		queues:       make(map[string][]func(ctx context.Context)),
	}
}

func (f *PresenceFanout) UserOnline(userID string) {
	f.enqueue(userID, func(ctx context.Context) {
		f.notifyPeers(ctx, userID, domain.Event{
			Type: domain.EventUserOnline,
			Data: domain.PresencePayload{UserID: userID, Online: true},
		})
	})
}

func (f *PresenceFanout) UserOffline(userID string, lastSeen time.Time) {
	f.enqueue(userID, func(ctx context.Context) {
		if f.lastSeen != nil {
			if err := f.lastSeen.SetLastSeen(ctx, userID, lastSeen); err != nil {
				slog.Warn("failed to record last seen",
					slog.String("user_id", userID),
					slog.String("error", err.Error()))
			}
		}
		at := lastSeen.UTC()
		f.notifyPeers(ctx, userID, domain.Event{
			Type: domain.EventUserOffline,
			Data: domain.PresencePayload{UserID: userID, Online: false, LastSeen: &at},
		})
	})
}

// Snapshot reports the presence of every conversation peer of userID.
func (f *PresenceFanout) Snapshot(ctx context.Context, userID string, presence OnlineChecker) (domain.PresenceSnapshotPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	peers, err := f.participants.ListPeers(ctx, userID)
	if err != nil {
		return domain.PresenceSnapshotPayload{}, domain.Transient(fmt.Errorf("list peers: %w", err))
	}

	snapshot := domain.PresenceSnapshotPayload{Peers: make([]domain.PresencePayload, 0, len(peers))}
	var offline []string
	for _, peer := range peers {
		online := presence.IsOnline(peer)
		if !online {
			offline = append(offline, peer)
		}
		snapshot.Peers = append(snapshot.Peers, domain.PresencePayload{UserID: peer, Online: online})
	}

	if len(offline) == 0 || f.lastSeen == nil {
		return snapshot, nil
	}

	seen, err := f.lastSeen.LastSeen(ctx, offline...)
	if err != nil {
		// Presence is best effort; the snapshot is still useful without it.
		slog.Warn("failed to load last seen",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return snapshot, nil
	}
	for i := range snapshot.Peers {
		if at, ok := seen[snapshot.Peers[i].UserID]; ok && !snapshot.Peers[i].Online {
			at := at.UTC()
			snapshot.Peers[i].LastSeen = &at
		}
	}
	return snapshot, nil
}

// Wait blocks until every in-flight fan-out has finished.
func (f *PresenceFanout) Wait() {
	f.wg.Wait()
}

func (f *PresenceFanout) notifyPeers(ctx context.Context, userID string, ev domain.Event) {
	peers, err := f.participants.ListPeers(ctx, userID)
	if err != nil {
		slog.Warn("failed to list presence peers",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return
	}
	for _, peer := range peers {
		f.router.ToUser(peer, ev)
	}
}

// enqueue runs fn after every earlier transition of userID. A user with
// pending work has exactly one draining goroutine.
func (f *PresenceFanout) enqueue(userID string, fn func(ctx context.Context)) {
	f.wg.Add(1)
	f.mu.Lock()
	pending, draining := f.queues[userID]
	f.queues[userID] = append(pending, fn)
	f.mu.Unlock()

	if !draining {
		go f.drain(userID)
	}
}

func (f *PresenceFanout) drain(userID string) {
	for {
		f.mu.Lock()
		pending := f.queues[userID]
		if len(pending) == 0 {
			delete(f.queues, userID)
			f.mu.Unlock()
			return
		}
		fn := pending[0]
		f.queues[userID] = pending[1:]
		f.mu.Unlock()

		f.run(fn)
	}
}

func (f *PresenceFanout) run(fn func(ctx context.Context)) {
	defer f.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	fn(ctx)
}
