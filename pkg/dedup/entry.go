package dedup

import (
	"slices"
	"time"
)

// Entry is the dedup record kept per fingerprint.
type Entry struct {
	Fingerprint     string     `json:"fingerprint"`
	FirstSeenAt     time.Time  `json:"first_seen_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	LastSentAt      *time.Time `json:"last_sent_at,omitempty"`
	Count           int        `json:"count"`
	NotificationIDs []string   `json:"notification_ids"`
	GroupKey        string     `json:"group_key,omitempty"`
}

// Active reports whether the entry still suppresses duplicates at now.
func (e Entry) Active(now time.Time, window time.Duration) bool {
	return now.Sub(e.LastSeenAt) < window
}

func (e Entry) clone() Entry {
	e.NotificationIDs = slices.Clone(e.NotificationIDs)
	if e.LastSentAt != nil {
		t := *e.LastSentAt
		e.LastSentAt = &t
	}
	return e
}

// Group summarises the active fingerprints indexed under one group key.
type Group struct {
	Key             string   `json:"key"`
	Fingerprints    []string `json:"fingerprints"`
	Occurrences     int      `json:"occurrences"`
	NotificationIDs []string `json:"notification_ids"`
}

// Stats is a point-in-time snapshot of the engine.
type Stats struct {
	Entries        int     `json:"entries"`
	Groups         int     `json:"groups"`
	Checks         uint64  `json:"checks"`
	Duplicates     uint64  `json:"duplicates"`
	DuplicateRatio float64 `json:"duplicate_ratio"`
	Swept          uint64  `json:"swept"`
}
