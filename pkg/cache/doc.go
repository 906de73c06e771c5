// Package cache provides a generic, thread-safe LRU map.
//
// LRU bounds memory by evicting the least recently used key once capacity is
// reached. Besides the usual Get/Put it offers:
//
//   - Peek, which reads without promoting. Callers that order entries by their
//     own timestamps (the dedup memory store) rely on this.
//   - RemoveOldestWhile, which sweeps from the stale end and stops at the first
//     entry that should stay.
//   - GetOrPut, for lazily created values such as per-user event streams.
//   - An eviction callback for releasing resources held by dropped values.
//
//	streams := cache.NewLRU[string, *events.Broadcaster[Message]](10000,
//	    cache.WithEvictCallback(func(_ string, b *events.Broadcaster[Message]) { b.Close() }),
//	)
package cache
