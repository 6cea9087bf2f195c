package permit

import "github.com/dgraph-io/ristretto"

// RistrettoCache adapts a ristretto cache to the Cache interface. Suited to
// result caching under high key churn, where admission control matters more
// than strict retention; a Get right after Set may miss while the entry
// travels through ristretto's buffers.
type RistrettoCache struct {
	c *ristretto.Cache
}

// RistrettoConfig sizes the underlying cache. Zero fields fall back to
// defaults good for roughly a million live decisions.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func NewRistrettoCache(cfg RistrettoConfig) (*RistrettoCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e7
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 26
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache{c: c}, nil
}

func (r *RistrettoCache) Get(key uint64) (any, bool) {
	return r.c.Get(key)
}

func (r *RistrettoCache) Set(key uint64, value any) {
	r.c.Set(key, value, 1)
}

func (r *RistrettoCache) Clear() {
	r.c.Clear()
}

// Close releases the cache's background goroutines.
func (r *RistrettoCache) Close() {
	r.c.Close()
}
