package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options configures a Cache.
type Options struct {
	// TTL is how long a loaded value stays fresh.
	TTL time.Duration
	// NegativeTTL is how long a load failure is remembered. Zero disables
	// negative caching entirely.
	NegativeTTL time.Duration
	// MaxEntries bounds the cache size; zero means unbounded.
	MaxEntries int
}

type entry[V any] struct {
	value     V
	err       error
	negative  bool
	expiresAt time.Time
}

// Cache is a TTL memo cache with singleflight load deduplication. Concurrent
// gets for the same missing key share one loader call.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]*entry[V]
	order []string
	opts  Options
	sf    singleflight.Group
}

// Loader fetches the value for key. ok=false with a nil-ish value marks a
// cacheable miss when NegativeTTL is set.
type Loader[V any] func(ctx context.Context, key string) (V, bool, error)

// New creates a Cache with the given options.
func New[V any](opts Options) *Cache[V] {
	return &Cache[V]{
		items: make(map[string]*entry[V]),
		order: make([]string, 0, 64),
		opts:  opts,
	}
}

type loadResult[V any] struct {
	val V
	ok  bool
	err error
}

// Get returns the cached value for key, loading it through loader on a miss.
func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, bool, error) {
	now := time.Now()
	c.mu.RLock()
	if e, ok := c.items[key]; ok && now.Before(e.expiresAt) {
		c.mu.RUnlock()
		if e.negative {
			var zero V
			return zero, false, e.err
		}
		return e.value, true, nil
	}
	c.mu.RUnlock()

	result, _, _ := c.sf.Do(key, func() (interface{}, error) {
		val, ok, err := loader(ctx, key)
		c.store(key, val, ok, err)
		return loadResult[V]{val: val, ok: ok, err: err}, nil
	})
	res := result.(loadResult[V])
	if !res.ok {
		var zero V
		return zero, false, res.err
	}
	return res.val, true, nil
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[V]) store(key string, val V, ok bool, err error) {
	now := time.Now()
	e := &entry[V]{}
	if ok {
		e.value = val
		e.expiresAt = now.Add(c.opts.TTL)
	} else {
		if c.opts.NegativeTTL <= 0 {
			return
		}
		e.err = err
		e.negative = true
		e.expiresAt = now.Add(c.opts.NegativeTTL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictIfNeeded()
}

func (c *Cache[V]) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	// FIFO eviction
	excess := len(c.items) - c.opts.MaxEntries
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		excess--
	}
}
