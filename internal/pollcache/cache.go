package pollcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc produces a fresh value for the cache.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Zone classifies the cached value's age against the cache windows.
type Zone int

const (
	// ZoneFresh means the value is younger than refreshAfter.
	ZoneFresh Zone = iota
	// ZoneDue means the value should be refreshed but may still be served.
	ZoneDue
	// ZoneDiscarded means the value must not be served.
	ZoneDiscarded
)

// String returns a lowercase name for logging.
func (z Zone) String() string {
	switch z {
	case ZoneFresh:
		return "fresh"
	case ZoneDue:
		return "due"
	default:
		return "discarded"
	}
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now     func() time.Time
	onStale func(err error)
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithStaleHandler registers a callback invoked when a refresh fails and the
// cached value is served instead.
func WithStaleHandler(fn func(err error)) Option {
	return func(o *options) { o.onStale = fn }
}

// Cache is a single-value polling cache. The zero value is not usable;
// create one with New.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Cache[T any] struct {
	refreshAfter time.Duration
	discardAfter time.Duration
	opts         options

	mu        sync.Mutex
	value     T
	has       bool
	fetchedAt time.Time
	stale     bool
	// staleGen counts MarkStale calls so a fetch that started before a
	// MarkStale does not clear the flag.
	staleGen uint64

	group singleflight.Group
}

// New creates a Cache with the given windows.
//
// Parameters:
//   - refreshAfter: age after which a refetch is attempted (0 = every call)
//   - discardAfter: age after which the cached value is never served
//   - opts: optional clock and stale-serve hooks
//
// Returns:
//   - *Cache[T]: Empty cache
func New[T any](refreshAfter, discardAfter time.Duration, opts ...Option) *Cache[T] {
	if discardAfter < refreshAfter {
		discardAfter = refreshAfter
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		refreshAfter: refreshAfter,
		discardAfter: discardAfter,
		opts:         o,
	}
}

// GetOrFetch returns the cached value or fetches a new one according to the
// cache windows.
//
// Parameters:
//   - ctx: Passed through to fetch. When calls are coalesced the first
//     caller's context drives the shared fetch.
//   - fetch: Produces a fresh value
//
// Returns:
//   - T: Cached or freshly fetched value
//   - error: The fetch error, only when no servable value exists
func (c *Cache[T]) GetOrFetch(ctx context.Context, fetch FetchFunc[T]) (T, error) {
	c.mu.Lock()
	zone := c.zoneLocked()
	cached := c.value
	c.mu.Unlock()

	if zone == ZoneFresh {
		return cached, nil
	}

	v, err, _ := c.group.Do("fetch", func() (any, error) {
		c.mu.Lock()
		// Another fetch may have completed since the zone was read.
		if c.zoneLocked() == ZoneFresh {
			v := c.value
			c.mu.Unlock()
			return v, nil
		}
		gen := c.staleGen
		c.mu.Unlock()

		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.value = fresh
		c.has = true
		c.fetchedAt = c.opts.now()
		c.stale = c.staleGen != gen
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		// The fetch may have outlived the discard window.
		c.mu.Lock()
		zone = c.zoneLocked()
		cached = c.value
		c.mu.Unlock()
		if zone != ZoneDiscarded {
			if c.opts.onStale != nil {
				c.opts.onStale(err)
			}
			return cached, nil
		}
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// MarkStale forces the next GetOrFetch to treat the cached value as discarded.
func (c *Cache[T]) MarkStale() {
	c.mu.Lock()
	c.stale = true
	c.staleGen++
	c.mu.Unlock()
}

// Peek returns the cached value without fetching.
//
// Returns:
//   - T: Cached value (zero if none)
//   - time.Time: When it was fetched
//   - bool: Whether a servable value exists (false if empty, stale or discarded)
func (c *Cache[T]) Peek() (T, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zoneLocked() == ZoneDiscarded {
		var zero T
		return zero, c.fetchedAt, false
	}
	return c.value, c.fetchedAt, true
}

// Zone reports the current zone of the cached value.
func (c *Cache[T]) Zone() Zone {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoneLocked()
}

func (c *Cache[T]) zoneLocked() Zone {
	if !c.has || c.stale {
		return ZoneDiscarded
	}
	age := c.opts.now().Sub(c.fetchedAt)
	switch {
	case age < c.refreshAfter:
		return ZoneFresh
	case age <= c.discardAfter:
		return ZoneDue
	default:
		return ZoneDiscarded
	}
}
