package permit

import (
	"sync"

	"github.com/mitchellh/hashstructure/v2"
)

// ============================================================================
// CACHING
// ============================================================================

// Cache is the optional memoization collaborator. It is purely an
// optimization: the engine returns identical verdicts with no cache
// configured. Keys are structural hashes of the cached computation's inputs,
// so map iteration order never changes a key. Invalidation is a full clear
// on rule replacement; no TTL, no per-entry eviction is assumed.
type Cache interface {
	Get(key uint64) (any, bool)
	Set(key uint64, value any)
	Clear()
}

// hashKey builds a stable structural key for any input shape.
func hashKey(v any) (uint64, error) {
	return hashstructure.Hash(v, hashstructure.FormatV2, nil)
}

// substitutionEntry keys the substituted-condition cache.
type substitutionEntry struct {
	Condition *Condition
	Context   map[string]any
}

// resultEntry keys the decision cache.
type resultEntry struct {
	Action   string
	Resource string
	Instance any
	Context  map[string]any
}

// MapCache is a mutex-guarded map with explicit full invalidation.
type MapCache struct {
	mu sync.RWMutex
	m  map[uint64]any
}

func NewMapCache() *MapCache {
	return &MapCache{m: make(map[uint64]any)}
}

func (c *MapCache) Get(key uint64) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *MapCache) Set(key uint64, value any) {
	c.mu.Lock()
	c.m[key] = value
	c.mu.Unlock()
}

func (c *MapCache) Clear() {
	c.mu.Lock()
	c.m = make(map[uint64]any)
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
