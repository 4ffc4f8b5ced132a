package cache

import (
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LRU is a fixed-capacity map that evicts the least recently used entry.
//
// LRU does no locking of its own. Callers must serialize access.
type LRU[K comparable, V any] struct {
	entries *simplelru.LRU[K, V]
}

func NewLRU[K comparable, V any](capacity int) (*LRU[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("lru capacity must be positive, got %d", capacity)
	}

	entries, err := simplelru.NewLRU[K, V](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}

	return &LRU[K, V]{entries: entries}, nil
}

// Get returns the value for key and marks it as most recently used
func (c *LRU[K, V]) Get(key K) (V, bool) {
	return c.entries.Get(key)
}

// Add inserts or replaces the value for key and marks it as most recently used.
// Returns true if the least recently used entry was evicted to make room.
func (c *LRU[K, V]) Add(key K, value V) bool {
	return c.entries.Add(key, value)
}

// Contains reports whether key is cached without touching its recency
func (c *LRU[K, V]) Contains(key K) bool {
	return c.entries.Contains(key)
}

func (c *LRU[K, V]) Remove(key K) bool {
	return c.entries.Remove(key)
}

func (c *LRU[K, V]) Len() int {
	return c.entries.Len()
}

// Keys returns the cached keys from least to most recently used
func (c *LRU[K, V]) Keys() []K {
	return c.entries.Keys()
}
