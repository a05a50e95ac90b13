package identity

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshStore tracks the single live refresh token of each subject.
// Saving a new token replaces the previous one, so a rotated token can
// never be exchanged twice.
type RefreshStore interface {
	Save(ctx context.Context, subject, tokenID string, ttl time.Duration) error
	// Consume atomically deletes the subject's token when it matches tokenID
	// and reports whether it did.
	Consume(ctx context.Context, subject, tokenID string) (bool, error)
	Revoke(ctx context.Context, subject string) error
}

var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisRefreshStore struct {
	client *redis.Client
	key    func(subject string) string
}

// NewRedisRefreshStore returns a RefreshStore backed by Redis. key builds the
// Redis key for a subject.
func NewRedisRefreshStore(client *redis.Client, key func(subject string) string) RefreshStore {
	return &redisRefreshStore{client: client, key: key}
}

func (s *redisRefreshStore) Save(ctx context.Context, subject, tokenID string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(subject), tokenID, ttl).Err()
}

func (s *redisRefreshStore) Consume(ctx context.Context, subject, tokenID string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.key(subject)}, tokenID).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisRefreshStore) Revoke(ctx context.Context, subject string) error {
	return s.client.Del(ctx, s.key(subject)).Err()
}

type refreshEntry struct {
	tokenID string
	expires time.Time
}

type memoryRefreshStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]refreshEntry
}

// NewMemoryRefreshStore returns an in-process RefreshStore.
func NewMemoryRefreshStore(now func() time.Time) RefreshStore {
	if now == nil {
		now = time.Now
	}
	return &memoryRefreshStore{now: now, entries: make(map[string]refreshEntry)}
}

func (s *memoryRefreshStore) Save(_ context.Context, subject, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[subject] = refreshEntry{tokenID: tokenID, expires: s.now().Add(ttl)}
	return nil
}

func (s *memoryRefreshStore) Consume(_ context.Context, subject, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[subject]
	if !ok || entry.tokenID != tokenID || !s.now().Before(entry.expires) {
		return false, nil
	}
	delete(s.entries, subject)
	return true, nil
}

func (s *memoryRefreshStore) Revoke(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, subject)
	return nil
}
