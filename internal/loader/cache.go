package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/ruleassert/internal/engine"
	"github.com/roach88/ruleassert/internal/ir"
)

var (
	// compilationsTotal counts rule bases built by any Cache.
	compilationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ruleassert",
		Subsystem: "rulebase",
		Name:      "compilations_total",
		Help:      "Total rule base compilations",
	})

	// cacheHitsTotal counts acquisitions served by a live cache entry.
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ruleassert",
		Subsystem: "rulebase",
		Name:      "cache_hits_total",
		Help:      "Total rule base acquisitions served from cache",
	})
)

// BuildFunc builds a rule base from resource patterns.
type BuildFunc func(ctx context.Context, resources []string) (*engine.RuleBase, error)

// Cache shares rule bases between holders of the same resource list.
//
// An entry lives exactly as long as someone holds it: Acquire bumps its
// reference count and the returned release func drops it; the entry is
// evicted when the count returns to zero. Concurrent first acquisitions
// of one key compile once.
//
// Thread Safety:
//
//	Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	flight  singleflight.Group
	build   BuildFunc
	logger  *slog.Logger
}

type cacheEntry struct {
	rb   *engine.RuleBase
	refs int
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithBuildFunc replaces the default builder (Build with the given options).
func WithBuildFunc(build BuildFunc) CacheOption {
	return func(c *Cache) {
		c.build = build
	}
}

// WithCacheLogger sets the logger for cache debug output.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates an empty cache. loadOpts are passed to Build unless a
// BuildFunc is configured.
func NewCache(loadOpts []Option, opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		build: func(_ context.Context, resources []string) (*engine.RuleBase, error) {
			return Build(resources, loadOpts...)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	defaultCacheOnce sync.Once
	defaultCache     *Cache
)

// DefaultCache returns the process-wide cache.
func DefaultCache() *Cache {
	defaultCacheOnce.Do(func() {
		defaultCache = NewCache(nil)
	})
	return defaultCache
}

// Acquire returns the rule base for resources, building it on first use.
//
// The release function MUST be called when the caller is done with the
// rule base. Calling it more than once has no further effect.
func (c *Cache) Acquire(ctx context.Context, resources []string) (*engine.RuleBase, func(), error) {
	key, err := ir.RuleBaseKey(resources)
	if err != nil {
		return nil, nil, fmt.Errorf("rule base key: %w", err)
	}

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		entry.refs++
		c.mu.Unlock()
		cacheHitsTotal.Inc()
		c.logger.Debug("rule base cache hit", "key", key, "refs", entry.refs)
		return entry.rb, c.releaser(key), nil
	}
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// The entry must be in c.entries before the flight ends.
	ch := c.flight.DoChan(key, func() (any, error) {
		c.mu.Lock()
		if entry, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return entry.rb, nil
		}
		c.mu.Unlock()

		rb, err := c.build(ctx, resources)
		if err != nil {
			return nil, err
		}
		compilationsTotal.Inc()

		c.mu.Lock()
		defer c.mu.Unlock()
		if entry, ok := c.entries[key]; ok {
			return entry.rb, nil
		}
		c.entries[key] = &cacheEntry{rb: rb}
		return rb, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		go c.dropIdle(key, ch)
		return nil, nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, nil, res.Err
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		// Every other holder released between the flight and here.
		entry = &cacheEntry{rb: res.Val.(*engine.RuleBase)}
		c.entries[key] = entry
	}
	entry.refs++
	refs := entry.refs
	c.mu.Unlock()

	c.logger.Debug("rule base acquired", "key", key, "refs", refs, "shared", res.Shared)
	return entry.rb, c.releaser(key), nil
}

// dropIdle evicts the entry built by a flight whose caller gave up, unless
// someone acquired it meanwhile.
func (c *Cache) dropIdle(key string, ch <-chan singleflight.Result) {
	res := <-ch
	if res.Err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok && entry.refs == 0 {
		delete(c.entries, key)
	}
}

func (c *Cache) releaser(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			entry, ok := c.entries[key]
			if !ok {
				return
			}
			entry.refs--
			if entry.refs <= 0 {
				delete(c.entries, key)
				c.logger.Debug("rule base evicted", "key", key)
			}
		})
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Refs returns the reference count for resources, 0 when not cached.
func (c *Cache) Refs(resources []string) int {
	key, err := ir.RuleBaseKey(resources)
	if err != nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		return entry.refs
	}
	return 0
}
