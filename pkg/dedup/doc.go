// Package dedup suppresses repeated notifications inside a sliding time window.
//
// Each notification is reduced to a fingerprint according to the configured
// Strategy. A notification is a duplicate when an entry for its fingerprint
// exists and was last seen less than Window ago. Expiry is lazy: stale entries
// stay in the store until the periodic sweep removes them, but they never count
// as duplicates.
//
// Strategies:
//
//   - fingerprint: tenant, user, type, title, message and sorted channels
//   - key: the caller supplied DeduplicationKey within the tenant, falling back to content-hash
//   - content-hash: title, message, type, category and data, ignoring recipients
//   - time-window: content-hash bucketed by fixed windows
//
// Entries live in a Store. MemoryStore is bounded and evicts the entry with the
// oldest LastSeenAt first; RedisStore shares entries across processes:
//
//	client, err := dedup.ConnectRedis(ctx, cfg.Redis)
//	if err != nil {
//	    return err
//	}
//	engine := dedup.New(
//	    dedup.WithStore(dedup.NewRedisStore(client, dedup.WithRedisTTL(cfg.Window))),
//	    dedup.WithWindow(cfg.Window),
//	)
//
// Notifications carrying a GroupKey are indexed under it so callers can ask
// how many distinct fingerprints are active for a burst (GetGroup).
//
// Forget withdraws a recorded notification id, for sends that never reached the
// queue or were cancelled. The entry is deleted once it holds no ids.
package dedup
