package pollguard

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type pollRecord struct {
	last        time.Time
	windowStart time.Time
	count       int64
}

// MemoryStore implements Store with an in-process TTL cache, for
// development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, pollRecord]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory poll tracker.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New[string, pollRecord](
		ttlcache.WithTTL[string, pollRecord](10 * time.Minute),
	)
	go cache.Start()
	return &MemoryStore{cache: cache}
}

func (s *MemoryStore) Observe(ctx context.Context, deviceCode string, now time.Time, window time.Duration) (time.Time, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record pollRecord
	if item := s.cache.Get(deviceCode); item != nil {
		record = item.Value()
	}

	if record.windowStart.IsZero() || now.Sub(record.windowStart) >= window {
		record.windowStart = now
		record.count = 0
	}
	record.count++

	last := record.last
	record.last = now
	s.cache.Set(deviceCode, record, ttlcache.DefaultTTL)

	return last, record.count, nil
}

func (s *MemoryStore) CheckHealth(ctx context.Context) error {
	return nil
}

// Close stops the cache's eviction loop.
func (s *MemoryStore) Close() {
	s.cache.Stop()
}
