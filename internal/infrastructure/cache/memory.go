package cache

import (
	"context"
	"sync"
	"time"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
)

// MemoryEmbeddingCache is the in-process query embedding cache used when
// Redis is disabled. Entries expire after the configured TTL.
type MemoryEmbeddingCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]*memoryItem
}

type memoryItem struct {
	vector     entities.Vector
	expireTime time.Time
}

// NewMemoryEmbeddingCache creates a new in-memory embedding cache
func NewMemoryEmbeddingCache(ttl time.Duration) *MemoryEmbeddingCache {
	store := &MemoryEmbeddingCache{
		ttl:   ttl,
		items: make(map[string]*memoryItem),
	}

	// Cleanup goroutine removes expired items
	go store.cleanupExpired()

	return store
}

// Get retrieves a cached embedding by query text
func (ms *MemoryEmbeddingCache) Get(_ context.Context, text string) (entities.Vector, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	item, exists := ms.items[text]
	if !exists {
		return nil, false
	}
	if time.Now().After(item.expireTime) {
		return nil, false
	}
	return item.vector, true
}

// Set stores an embedding with the cache TTL
func (ms *MemoryEmbeddingCache) Set(_ context.Context, text string, vector entities.Vector) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.items[text] = &memoryItem{
		vector:     vector,
		expireTime: time.Now().Add(ms.ttl),
	}
}

// cleanupExpired periodically removes expired items
func (ms *MemoryEmbeddingCache) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		ms.mu.Lock()
		now := time.Now()
		for key, item := range ms.items {
			if now.After(item.expireTime) {
				delete(ms.items, key)
			}
		}
		ms.mu.Unlock()
	}
}
