package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Strategy selects which notification fields make up a fingerprint.
type Strategy string

const (
	// StrategyFingerprint hashes tenant, user, type, title, message and the sorted channels.
	StrategyFingerprint Strategy = "fingerprint"
	// StrategyKey uses the caller supplied DeduplicationKey, scoped to the tenant.
	// Notifications without a key fall back to the content hash.
	StrategyKey Strategy = "key"
	// StrategyContentHash hashes title, message, type, category and data, ignoring recipients.
	StrategyContentHash Strategy = "content-hash"
	// StrategyTimeWindow is the content hash bucketed by fixed windows, so the same
	// content in different windows never collides.
	StrategyTimeWindow Strategy = "time-window"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyFingerprint, StrategyKey, StrategyContentHash, StrategyTimeWindow:
		return true
	}
	return false
}

// Fingerprint derives the dedup key of n under strategy s.
// window and now only matter for StrategyTimeWindow.
func Fingerprint(s Strategy, n *notifications.Notification, window time.Duration, now time.Time) string {
	switch s {
	case StrategyKey:
		if n.DeduplicationKey != "" {
			return hash(string(s), n.TenantID, n.DeduplicationKey)
		}
		return contentHash(n)
	case StrategyContentHash:
		return contentHash(n)
	case StrategyTimeWindow:
		bucket := int64(0)
		if window > 0 {
			bucket = now.UnixNano() / int64(window)
		}
		return hash(string(s), contentHash(n), strconv.FormatInt(bucket, 10))
	default:
		channels := make([]string, 0, len(n.Channels))
		for _, ch := range n.Channels {
			channels = append(channels, string(ch))
		}
		slices.Sort(channels)
		return hash(string(StrategyFingerprint),
			n.TenantID,
			n.UserID,
			n.Type,
			n.Title,
			n.Message,
			strings.Join(channels, ","),
		)
	}
}

func contentHash(n *notifications.Notification) string {
	return hash(string(StrategyContentHash), n.Title, n.Message, n.Type, n.Category, canonicalData(n.Data))
}

// canonicalData relies on encoding/json sorting map keys.
func canonicalData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(b)
}

// hash returns the first 16 bytes of sha256 over the |-joined parts as 32 hex chars.
func hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}
