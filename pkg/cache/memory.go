package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	value    []byte
	expireAt time.Time // zero never expires
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// MemoryOption tunes a MemoryCache.
type MemoryOption func(*memorySettings)

type memorySettings struct {
	maxSize int
	cleanup time.Duration
	now     func() time.Time
}

// WithMemoryMaxSize bounds the number of entries; the least recently read
// entry is evicted beyond it.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(s *memorySettings) { s.maxSize = size }
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(s *memorySettings) { s.cleanup = interval }
}

// WithMemoryClock overrides the clock used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *memorySettings) { s.now = now }
}

// MemoryCache implements Service in process with LRU eviction. It backs the
// memory state store and single-process leases.
type MemoryCache struct {
	mutex   sync.Mutex
	data    map[string]*entry
	access  map[string]time.Time
	maxSize int
	now     func() time.Time

	cleanupTicker *time.Ticker
	done          chan struct{}
	closeOnce     sync.Once
}

// NewMemoryCache creates an in-memory cache and starts its expiry sweep.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	s := memorySettings{maxSize: 1024, cleanup: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.maxSize <= 0 {
		s.maxSize = 1024
	}
	if s.cleanup <= 0 {
		s.cleanup = time.Minute
	}

	mc := &MemoryCache{
		data:          make(map[string]*entry),
		access:        make(map[string]time.Time),
		maxSize:       s.maxSize,
		now:           s.now,
		cleanupTicker: time.NewTicker(s.cleanup),
		done:          make(chan struct{}),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if _, ok := mc.data[key]; !ok && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	mc.putLocked(key, data, expiration)
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mutex.Lock()
	item, ok := mc.liveLocked(key)
	if ok {
		mc.access[key] = mc.now()
	}
	mc.mutex.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return decode(item.value, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		delete(mc.data, key)
		delete(mc.access, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		if _, ok := mc.liveLocked(key); ok {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) AcquireLease(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if item, ok := mc.liveLocked(key); ok && string(item.value) != owner {
		return false, nil
	}
	mc.putLocked(key, []byte(owner), ttl)
	return true, nil
}

func (mc *MemoryCache) ReleaseLease(_ context.Context, key, owner string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if item, ok := mc.liveLocked(key); ok && string(item.value) == owner {
		delete(mc.data, key)
		delete(mc.access, key)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included until swept.
func (mc *MemoryCache) Len() int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) putLocked(key string, data []byte, expiration time.Duration) {
	now := mc.now()
	item := &entry{value: data}
	if expiration > 0 {
		item.expireAt = now.Add(expiration)
	}
	mc.data[key] = item
	mc.access[key] = now
}

func (mc *MemoryCache) liveLocked(key string) (*entry, bool) {
	item, ok := mc.data[key]
	if !ok {
		return nil, false
	}
	if item.expired(mc.now()) {
		delete(mc.data, key)
		delete(mc.access, key)
		return nil, false
	}
	return item, true
}

func (mc *MemoryCache) evictLRU() {
	var victim string
	var oldest time.Time
	for key, at := range mc.access {
		if victim == "" || at.Before(oldest) {
			victim, oldest = key, at
		}
	}
	if victim != "" {
		delete(mc.data, victim)
		delete(mc.access, victim)
	}
}

func (mc *MemoryCache) sweep() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.cleanupTicker.C:
		}
		mc.mutex.Lock()
		now := mc.now()
		for key, item := range mc.data {
			if item.expired(now) {
				delete(mc.data, key)
				delete(mc.access, key)
			}
		}
		mc.mutex.Unlock()
	}
}

// Close stops the cleanup loop.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() {
		mc.cleanupTicker.Stop()
		close(mc.done)
	})
	return nil
}
