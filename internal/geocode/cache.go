package geocode

import (
	"container/list"
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/stwalsh4118/urbex/api/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds a Cache created with a non-positive size.
const DefaultCacheSize = 1000

// Cache is a bounded LRU cache of successful lookups in front of a
// Provider. Concurrent misses for the same address share one provider call.
// Cache itself implements Provider; reverse lookups are not cached.
//
// Cache is safe for concurrent use.
type Cache struct {
	provider Provider
	size     int
	metrics  *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	flight  singleflight.Group
}

type cacheEntry struct {
	key    string
	result Result
}

// NewCache wraps p with an LRU cache holding at most size results.
func NewCache(p Provider, size int, m *metrics.Metrics) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		provider: p,
		size:     size,
		metrics:  m,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Name implements Provider.
func (c *Cache) Name() string { return c.provider.Name() }

// Geocode returns the cached result for address or asks the provider.
// Lookups are keyed case-insensitively with surrounding space trimmed.
func (c *Cache) Geocode(ctx context.Context, address string) (*Result, error) {
	key := cacheKey(address)

	if r, ok := c.get(key); ok {
		c.metrics.RecordGeocode(c.Name(), "hit")
		return r, nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		if r, ok := c.get(key); ok {
			return r, nil
		}
		r, err := c.provider.Geocode(ctx, address)
		if err != nil {
			return nil, err
		}
		c.put(key, *r)
		return r, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.metrics.RecordGeocode(c.Name(), "miss")
		} else {
			c.metrics.RecordGeocode(c.Name(), "error")
		}
		return nil, err
	}

	c.metrics.RecordGeocode(c.Name(), "miss")
	r := *v.(*Result)
	return &r, nil
}

// ReverseGeocode implements Provider by delegating to the provider.
func (c *Cache) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	return c.provider.ReverseGeocode(ctx, lat, lng)
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear drops every cached result.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.mu.Unlock()

	c.metrics.SetGeocodeCacheSize(0)
}

func (c *Cache) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(el)
	r := el.Value.(*cacheEntry).result
	return &r, true
}

func (c *Cache) put(key string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = r
		c.lru.MoveToFront(el)
		return
	}

	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, result: r})
	for c.lru.Len() > c.size {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	c.metrics.SetGeocodeCacheSize(c.lru.Len())
}

func cacheKey(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
