package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastSeenPrefix = "presence:last_seen:"

// LastSeenStore keeps the time each user was last online. Entries expire
// after ttl so users who never return do not accumulate.
type LastSeenStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewLastSeenStore(rdb redis.Cmdable, ttl time.Duration) *LastSeenStore {
	return &LastSeenStore{rdb: rdb, ttl: ttl}
}

func lastSeenKey(userID string) string {
	return lastSeenPrefix + userID
}

func (s *LastSeenStore) SetLastSeen(ctx context.Context, userID string, at time.Time) error {
	if err := s.rdb.Set(ctx, lastSeenKey(userID), at.UTC().Format(time.RFC3339Nano), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store last seen for %s: %w", userID, err)
	}
	return nil
}

// LastSeen returns the recorded times for the given users. Users with no
// record, or an unreadable one, are absent from the result.
func (s *LastSeenStore) LastSeen(ctx context.Context, userIDs ...string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = lastSeenKey(id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load last seen: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			continue
		}
		out[userIDs[i]] = at
	}
	return out, nil
}
