package service_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"tutoring-chat/internal/service"
	"tutoring-chat/internal/testutil"

	"github.com/stretchr/testify/assert"
)

type offlineEvent struct {
	userID   string
	lastSeen time.Time
}

type recordingNotifier struct {
	mu      sync.Mutex
	online  []string
	offline []offlineEvent
}

func (n *recordingNotifier) UserOnline(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.online = append(n.online, userID)
}

func (n *recordingNotifier) UserOffline(userID string, lastSeen time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = append(n.offline, offlineEvent{userID, lastSeen})
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.online), len(n.offline)
}

const debounce = 50 * time.Millisecond

func TestPresence_ReconnectWithinWindowEmitsNothing(t *testing.T) {
	n := &recordingNotifier{}
	tracker := service.NewPresenceTracker(debounce, n)
	defer tracker.Stop()

	tracker.ConnectionOpened("A", "c1")
	tracker.ConnectionClosed("A", "c1")
	assert.Equal(t, service.PendingOffline, tracker.State("A"))
	assert.True(t, tracker.IsOnline("A"), "pending offline still counts as online")

	tracker.ConnectionOpened("A", "c2")
	assert.Equal(t, service.Online, tracker.State("A"))

	time.Sleep(3 * debounce)

	online, offline := n.counts()
	assert.Equal(t, 1, online)
	assert.Equal(t, 0, offline)
	assert.Equal(t, service.Online, tracker.State("A"))
}

func TestPresence_StayingAwayEmitsOneOffline(t *testing.T) {
	n := &recordingNotifier{}
	tracker := service.NewPresenceTracker(debounce, n)
	defer tracker.Stop()

	tracker.ConnectionOpened("A", "c1")
	before := time.Now()
	tracker.ConnectionClosed("A", "c1")
	after := time.Now()

	testutil.WaitFor(t, time.Second, func() bool {
		_, offline := n.counts()
		return offline > 0
	}, "offline was never emitted")
	time.Sleep(2 * debounce)

	n.mu.Lock()
	defer n.mu.Unlock()
	if assert.Len(t, n.offline, 1) {
		ev := n.offline[0]
		assert.Equal(t, "A", ev.userID)
		assert.False(t, ev.lastSeen.Before(before))
		assert.False(t, ev.lastSeen.After(after), "last seen is the close time, not the expiry time")
	}
	assert.Equal(t, service.Offline, tracker.State("A"))
}

func TestPresence_ReferenceCountsConnections(t *testing.T) {
	n := &recordingNotifier{}
	tracker := service.NewPresenceTracker(debounce, n)
	defer tracker.Stop()

	tracker.ConnectionOpened("A", "laptop")
	tracker.ConnectionOpened("A", "phone")
	assert.Equal(t, 2, tracker.Connections("A"))

	tracker.ConnectionClosed("A", "laptop")
	assert.Equal(t, service.Online, tracker.State("A"))

	tracker.ConnectionClosed("A", "phone")
	assert.Equal(t, service.PendingOffline, tracker.State("A"))

	testutil.WaitFor(t, time.Second, func() bool {
		return tracker.State("A") == service.Offline
	}, "user never went offline")

	online, offline := n.counts()
	assert.Equal(t, 1, online, "second connection does not re-announce")
	assert.Equal(t, 1, offline)
}

func TestPresence_ClosingUnknownConnectionIsNoop(t *testing.T) {
	n := &recordingNotifier{}
	tracker := service.NewPresenceTracker(debounce, n)
	defer tracker.Stop()

	tracker.ConnectionClosed("ghost", "c1")
	tracker.ConnectionOpened("A", "c1")
	tracker.ConnectionClosed("A", "other")

	assert.Equal(t, service.Offline, tracker.State("ghost"))
	assert.Equal(t, service.Online, tracker.State("A"))
}

func TestPresence_ListOnline(t *testing.T) {
	tracker := service.NewPresenceTracker(time.Hour, nil)
	defer tracker.Stop()

	tracker.ConnectionOpened("carol", "c1")
	tracker.ConnectionOpened("alice", "a1")
	tracker.ConnectionOpened("bob", "b1")
	tracker.ConnectionClosed("bob", "b1")

	assert.Equal(t, []string{"alice", "bob", "carol"}, tracker.ListOnline())
}

func TestPresence_ConcurrentUsers(t *testing.T) {
	n := &recordingNotifier{}
	tracker := service.NewPresenceTracker(debounce, n)
	defer tracker.Stop()

	const users = 100
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", i)
			for c := 0; c < 5; c++ {
				connID := fmt.Sprintf("%s-conn-%d", userID, c)
				tracker.ConnectionOpened(userID, connID)
				if c%2 == 0 {
					tracker.ConnectionClosed(userID, connID)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, tracker.ListOnline(), users)
	for i := 0; i < users; i++ {
		assert.Equal(t, 2, tracker.Connections(fmt.Sprintf("user-%d", i)))
	}

	time.Sleep(3 * debounce)
	online, offline := n.counts()
	assert.Equal(t, users, online)
	assert.Equal(t, 0, offline)
}

func TestPresenceState_String(t *testing.T) {
	assert.Equal(t, "offline", service.Offline.String())
	assert.Equal(t, "online", service.Online.String())
	assert.Equal(t, "pending_offline", service.PendingOffline.String())
}
