package promptops

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is a sharded in-process CacheBackend with per-entry TTL.
// Useful for tests and single-process deployments that do not run Redis.
type MemoryBackend struct {
	shards []*memoryShard
}

type memoryShard struct {
	mu    sync.RWMutex
	store map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

const memoryShardCount = 16

// NewMemoryBackend creates an empty in-memory cache backend.
func NewMemoryBackend() *MemoryBackend {
	shards := make([]*memoryShard, memoryShardCount)
	for i := range shards {
		shards[i] = &memoryShard{store: make(map[string]memoryEntry)}
	}
	return &MemoryBackend{shards: shards}
}

func (b *MemoryBackend) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return b.shards[h.Sum32()%memoryShardCount]
}

// Get implements CacheBackend. Expired entries are dropped on read.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	s := b.shard(key)
	s.mu.RLock()
	entry, ok := s.store[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.store, key)
		s.mu.Unlock()
		return nil, nil
	}
	return entry.value, nil
}

// Set implements CacheBackend.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s := b.shard(key)
	s.mu.Lock()
	s.store[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// DeleteByPrefix implements CacheBackend.
func (b *MemoryBackend) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, s := range b.shards {
		s.mu.Lock()
		for key := range s.store {
			if strings.HasPrefix(key, prefix) {
				delete(s.store, key)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// Ping implements CacheBackend.
func (b *MemoryBackend) Ping(context.Context) error { return nil }

// Close implements CacheBackend.
func (b *MemoryBackend) Close() error {
	for _, s := range b.shards {
		s.mu.Lock()
		s.store = make(map[string]memoryEntry)
		s.mu.Unlock()
	}
	return nil
}
