// Package ttlcache memoizes a loader function for a fixed time window.
//
// A Cache is keyed by the JSON encoding of the ordered argument list passed
// to Get, so Get(ctx, "a", "b") and Get(ctx, "b", "a") are distinct entries.
// Both successful values and loader errors are remembered until they expire.
package ttlcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	appLog "countdown/internal/log"
)

// Loader computes the value for a set of arguments on a cache miss.
type Loader[V any] func(ctx context.Context, args ...any) (V, error)

// Clock abstracts wall-clock time so expiry can be driven in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock backed by time.Now.
var SystemClock Clock = systemClock{}

// Sweeper is the type-independent view of a Cache used by periodic cleanup.
type Sweeper interface {
	Name() string
	Now() time.Time
	Purge(now time.Time) int
}

type entry[V any] struct {
	value      V
	err        error
	insertedAt time.Time
}

// Cache is a time-bounded memoization of a single Loader.
// It is safe for concurrent use. Concurrent misses on the same key each
// invoke the loader; the last one to finish wins.
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	load  Loader[V]
	clock Clock

	// wholeTable switches to the legacy policy where any access after the
	// window since the last miss drops every entry at once.
	wholeTable bool

	mu        sync.Mutex
	entries   map[string]entry[V]
	lastReset time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	name       string
	clock      Clock
	wholeTable bool
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithName labels the cache in log lines.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithWholeTableReset restores the legacy expiry policy: a single timestamp,
// bumped on every miss, decides whether the entire table is discarded on the
// next access. Entries are not checked individually in this mode.
func WithWholeTableReset() Option {
	return func(o *options) { o.wholeTable = true }
}

// New returns a Cache that remembers results of load for ttl.
func New[V any](ttl time.Duration, load Loader[V], opts ...Option) *Cache[V] {
	o := options{clock: SystemClock, name: "ttlcache"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		name:       o.name,
		ttl:        ttl,
		load:       load,
		clock:      o.clock,
		wholeTable: o.wholeTable,
		entries:    make(map[string]entry[V]),
	}
}

// Key returns the cache key for an argument list.
func Key(args ...any) (string, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("ttlcache: encode key: %w", err)
	}
	return string(b), nil
}

// Get returns the live entry for args, or runs the loader and stores its
// result. A result whose load was interrupted by ctx is returned but not stored.
func (c *Cache[V]) Get(ctx context.Context, args ...any) (V, error) {
	key, err := Key(args...)
	if err != nil {
		var zero V
		return zero, err
	}

	now := c.clock.Now()

	c.mu.Lock()
	if c.wholeTable && now.Sub(c.lastReset) > c.ttl && len(c.entries) > 0 {
		appLog.Debug("cache window elapsed, dropping table", "cache", c.name, "entries", len(c.entries))
		c.entries = make(map[string]entry[V])
	}
	if e, ok := c.entries[key]; ok && (c.wholeTable || !c.expired(e, now)) {
		c.mu.Unlock()
		return e.value, e.err
	}
	c.mu.Unlock()

	v, err := c.load(ctx, args...)
	if ctx.Err() != nil {
		return v, err
	}

	stamp := c.clock.Now()
	c.mu.Lock()
	c.entries[key] = entry[V]{value: v, err: err, insertedAt: stamp}
	if c.wholeTable {
		c.lastReset = stamp
	}
	c.mu.Unlock()

	return v, err
}

func (c *Cache[V]) expired(e entry[V], now time.Time) bool {
	return now.Sub(e.insertedAt) > c.ttl
}

// Purge drops every entry older than the TTL and reports how many were removed.
func (c *Cache[V]) Purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wholeTable {
		if now.Sub(c.lastReset) <= c.ttl {
			return 0
		}
		n := len(c.entries)
		c.entries = make(map[string]entry[V])
		return n
	}

	n := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Reset empties the cache.
func (c *Cache[V]) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.lastReset = time.Time{}
	c.mu.Unlock()
}

// Len reports the number of stored entries, live or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Name returns the label given by WithName.
func (c *Cache[V]) Name() string { return c.name }

// Now returns the cache's notion of the current time.
func (c *Cache[V]) Now() time.Time { return c.clock.Now() }
