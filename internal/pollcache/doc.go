// Package pollcache provides a single-value cache for data that is polled
// from a slow or unreliable upstream.
//
// A Cache holds at most one value and classifies its age into three zones:
//
//	age < refreshAfter                  fresh: served without fetching
//	refreshAfter <= age <= discardAfter due: refetched, cached value served if the fetch fails
//	age > discardAfter                  discarded: refetched, fetch errors propagate
//
// An empty cache, or one flagged with MarkStale, behaves as discarded.
// Concurrent GetOrFetch calls share a single in-flight fetch; each caller
// still applies the zone it observed when deciding whether to fall back to
// the cached value.
//
// Usage:
//
//	props := pollcache.New[map[string]any](0, 30*time.Minute)
//	v, err := props.GetOrFetch(ctx, func(ctx context.Context) (map[string]any, error) {
//	    return client.GetProperties(ctx, iotID)
//	})
package pollcache
