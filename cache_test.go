package permit_test

import (
	"testing"

	"github.com/oarkflow/permit"
)

func TestMapCache(t *testing.T) {
	cache := permit.NewMapCache()

	if _, ok := cache.Get(1); ok {
		t.Fatal("empty cache must miss")
	}

	cache.Set(1, "verdict")
	cache.Set(2, true)

	v, ok := cache.Get(1)
	if !ok || v != "verdict" {
		t.Fatalf("expected stored value, got (%v, %t)", v, ok)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}

	cache.Set(1, "replaced")
	v, _ = cache.Get(1)
	if v != "replaced" {
		t.Fatalf("expected overwrite, got %v", v)
	}
	if cache.Len() != 2 {
		t.Fatalf("overwrite must not grow the cache, got %d entries", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after clear, got %d entries", cache.Len())
	}
	if _, ok := cache.Get(2); ok {
		t.Fatal("cleared cache must miss")
	}
}

func TestMapCacheConcurrent(t *testing.T) {
	cache := permit.NewMapCache()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			cache.Set(uint64(i%10), i)
		}
	}()
	for i := 0; i < 1000; i++ {
		cache.Get(uint64(i % 10))
	}
	<-done
}

// Ristretto admits entries through buffers, so freshly set keys may miss; the
// adapter is exercised for construction, the interface ops and shutdown.
func TestRistrettoCacheLifecycle(t *testing.T) {
	cache, err := permit.NewRistrettoCache(permit.RistrettoConfig{})
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	cache.Set(42, true)
	cache.Get(42)
	cache.Clear()
	cache.Close()
}

func TestRistrettoCacheSizing(t *testing.T) {
	cache, err := permit.NewRistrettoCache(permit.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	cache.Close()
}
