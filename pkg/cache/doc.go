// Package cache implements the todos cache and its hit counter on top of a
// store.Store.
//
// Two flat keys live in Redis:
//
//   - "todos": the last upstream payload (compact JSON), written with a TTL
//     (DefaultTTL, 10s) on every refresh and left to expire on its own.
//   - "count": the number of cache hits since the last refresh, stored as a
//     decimal string. It is created lazily as "0", incremented by exactly
//     one per hit and reset to "0" on every refresh. It is never decremented
//     or deleted.
//
// The two keys are not updated in a transaction. Concurrent refreshes race
// and the last write wins; a hit racing a refresh may be counted against
// the new payload.
//
// # Basic Usage
//
//	manager := cache.NewManager(conn, cache.DefaultTTL)
//
//	if _, err := manager.EnsureCounter(ctx); err != nil {
//		// store failure
//	}
//
//	entry, err := manager.Lookup(ctx)
//	switch {
//	case err == nil:
//		count, _ := manager.RecordHit(ctx)
//		// serve entry.Data
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch upstream, then manager.Refresh(ctx, payload)
//	default:
//		// store failure
//	}
//
// # Metrics
//
//   - todos_cache_requests_total{result} - hit, miss and bypass outcomes
//   - todos_cache_hit_count - counter value after the last hit or refresh
//   - todos_cache_size_bytes - size of the last cached payload
//   - todos_cache_errors_total{operation} - failed cache operations
package cache
