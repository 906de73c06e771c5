package dedup

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Decision is the outcome of Observe.
type Decision struct {
	Fingerprint string
	Duplicate   bool
	Entry       Entry
}

// Engine suppresses repeated notifications inside a sliding time window.
type Engine struct {
	store         Store
	strategy      Strategy
	window        time.Duration
	maxEntries    int
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
	bus           *events.Bus

	// mu serialises check-then-record so two concurrent sends of the same
	// content cannot both pass.
	mu     sync.Mutex
	groups map[string]map[string]struct{}

	checks     atomic.Uint64
	duplicates atomic.Uint64
	swept      atomic.Uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an engine. Without WithStore it keeps entries in memory.
func New(opts ...Option) *Engine {
	e := &Engine{
		strategy:      StrategyFingerprint,
		window:        5 * time.Minute,
		maxEntries:    10000,
		sweepInterval: time.Minute,
		now:           time.Now,
		logger:        slog.Default(),
		groups:        make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = NewMemoryStore(e.maxEntries)
	}
	return e
}

// Strategy returns the configured fingerprint strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Window returns the dedup window.
func (e *Engine) Window() time.Duration { return e.window }

// Fingerprint derives the dedup key of n at the current time.
func (e *Engine) Fingerprint(n *notifications.Notification) string {
	return Fingerprint(e.strategy, n, e.window, e.now())
}

// IsDuplicate reports whether n matches an entry seen within the window.
// Expired entries are treated as absent even if the store still holds them.
func (e *Engine) IsDuplicate(ctx context.Context, n *notifications.Notification) (bool, error) {
	if n == nil {
		return false, ErrNilNotification
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	dup, _, err := e.isDuplicate(ctx, e.Fingerprint(n))
	if err != nil {
		return false, err
	}
	e.checks.Add(1)
	if dup {
		e.duplicates.Add(1)
	}
	return dup, nil
}

// Record notes an occurrence of n and slides the window forward.
// It is safe to call after every send decision, duplicate or not.
func (e *Engine) Record(ctx context.Context, n *notifications.Notification) (Entry, error) {
	if n == nil {
		return Entry{}, ErrNilNotification
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.record(ctx, n, e.Fingerprint(n))
}

// Observe checks and records n in one step. The result is what IsDuplicate
// followed by Record would return, without a gap between them.
func (e *Engine) Observe(ctx context.Context, n *notifications.Notification) (Decision, error) {
	if n == nil {
		return Decision{}, ErrNilNotification
	}

	e.mu.Lock()
	fp := e.Fingerprint(n)
	dup, _, err := e.isDuplicate(ctx, fp)
	if err != nil {
		e.mu.Unlock()
		return Decision{}, err
	}
	entry, err := e.record(ctx, n, fp)
	e.mu.Unlock()
	if err != nil {
		return Decision{}, err
	}

	e.checks.Add(1)
	if dup {
		e.duplicates.Add(1)
		e.logger.LogAttrs(ctx, slog.LevelDebug, "duplicate notification suppressed",
			logger.NotificationID(n.ID),
			logger.TenantID(n.TenantID),
			logger.Fingerprint(fp),
			slog.Int("count", entry.Count),
		)
		e.bus.Emit(ctx, events.Event{
			Type:           events.NotificationDeduplicated,
			Component:      "dedup",
			NotificationID: n.ID,
			TenantID:       n.TenantID,
			Priority:       n.Priority.String(),
			Data:           map[string]any{"fingerprint": fp, "count": entry.Count},
		})
	}

	return Decision{Fingerprint: fp, Duplicate: dup, Entry: entry}, nil
}

// Forget takes notificationID back out of the entry for fp, as if it had never
// been observed. The entry is removed once no notification is left on it.
// Unknown fingerprints and ids are ignored.
func (e *Engine) Forget(ctx context.Context, fp, notificationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok, err := e.store.Get(ctx, fp)
	if err != nil || !ok {
		return err
	}
	i := slices.Index(entry.NotificationIDs, notificationID)
	if i < 0 {
		return nil
	}

	entry.NotificationIDs = slices.Delete(entry.NotificationIDs, i, i+1)
	entry.Count--
	if entry.Count <= 0 || len(entry.NotificationIDs) == 0 {
		if set, ok := e.groups[entry.GroupKey]; ok {
			delete(set, fp)
			if len(set) == 0 {
				delete(e.groups, entry.GroupKey)
			}
		}
		return e.store.Delete(ctx, fp)
	}
	return e.store.Save(ctx, entry)
}

// MarkSent stamps the entry of n as delivered and refreshes its LastSeenAt.
func (e *Engine) MarkSent(ctx context.Context, n *notifications.Notification) error {
	if n == nil {
		return ErrNilNotification
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fp := e.Fingerprint(n)
	entry, ok, err := e.store.Get(ctx, fp)
	if err != nil {
		return err
	}
	now := e.now()
	if !ok {
		entry = Entry{Fingerprint: fp, FirstSeenAt: now, Count: 1, GroupKey: n.GroupKey}
		if n.ID != "" {
			entry.NotificationIDs = []string{n.ID}
		}
		e.index(entry.GroupKey, fp)
	}
	entry.LastSeenAt = now
	entry.LastSentAt = &now
	return e.store.Save(ctx, entry)
}

// GetGroup returns the active fingerprints indexed under key.
// Fingerprints that expired or were evicted are pruned from the index.
func (e *Engine) GetGroup(ctx context.Context, key string) (Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := Group{Key: key, Fingerprints: []string{}, NotificationIDs: []string{}}
	fps := e.groups[key]
	now := e.now()

	for fp := range fps {
		entry, ok, err := e.store.Get(ctx, fp)
		if err != nil {
			return Group{}, err
		}
		if !ok || !entry.Active(now, e.window) {
			delete(fps, fp)
			continue
		}
		g.Fingerprints = append(g.Fingerprints, fp)
		g.Occurrences += entry.Count
		g.NotificationIDs = append(g.NotificationIDs, entry.NotificationIDs...)
	}
	if len(fps) == 0 {
		delete(e.groups, key)
	}

	slices.Sort(g.Fingerprints)
	return g, nil
}

// ClearExpired removes every entry whose window has elapsed and returns how many were removed.
func (e *Engine) ClearExpired(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// An entry is expired once now - LastSeenAt >= window, i.e. LastSeenAt <= now - window.
	cutoff := e.now().Add(-e.window).Add(time.Nanosecond)
	n, err := e.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	e.swept.Add(uint64(n))
	return n, nil
}

// Stats returns counters and the current entry count.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	size, err := e.store.Len(ctx)
	if err != nil {
		return Stats{}, err
	}

	e.mu.Lock()
	groups := len(e.groups)
	e.mu.Unlock()

	s := Stats{
		Entries:    size,
		Groups:     groups,
		Checks:     e.checks.Load(),
		Duplicates: e.duplicates.Load(),
		Swept:      e.swept.Load(),
	}
	if s.Checks > 0 {
		s.DuplicateRatio = float64(s.Duplicates) / float64(s.Checks)
	}
	return s, nil
}

// Start launches the periodic sweep.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel != nil {
		return ErrEngineAlreadyStarted
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.sweep(ctx, e.done)

	e.logger.Info("dedup sweeper started",
		slog.String("strategy", string(e.strategy)),
		logger.Duration(e.window),
	)
	return nil
}

// Stop halts the sweep and waits for it to exit.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel == nil {
		return ErrEngineNotStarted
	}
	e.cancel()
	<-e.done
	e.cancel = nil

	e.logger.Info("dedup sweeper stopped")
	return nil
}

// Run starts the sweep and returns a function suitable for errgroup.
func (e *Engine) Run(ctx context.Context) func() error {
	return func() error {
		if err := e.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return e.Stop()
	}
}

func (e *Engine) sweep(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.ClearExpired(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					e.logger.LogAttrs(ctx, slog.LevelError, "dedup sweep failed", logger.Error(err))
				}
				continue
			}
			if n > 0 {
				e.logger.LogAttrs(ctx, slog.LevelDebug, "dedup entries expired", slog.Int("count", n))
			}
		}
	}
}

func (e *Engine) isDuplicate(ctx context.Context, fp string) (bool, Entry, error) {
	entry, ok, err := e.store.Get(ctx, fp)
	if err != nil {
		return false, Entry{}, err
	}
	if !ok {
		return false, Entry{}, nil
	}
	return entry.Active(e.now(), e.window), entry, nil
}

func (e *Engine) record(ctx context.Context, n *notifications.Notification, fp string) (Entry, error) {
	now := e.now()
	entry, ok, err := e.store.Get(ctx, fp)
	if err != nil {
		return Entry{}, err
	}
	if !ok || !entry.Active(now, e.window) {
		entry = Entry{Fingerprint: fp, FirstSeenAt: now}
	}

	entry.LastSeenAt = now
	entry.Count++
	if n.ID != "" && !slices.Contains(entry.NotificationIDs, n.ID) {
		entry.NotificationIDs = append(entry.NotificationIDs, n.ID)
	}
	if n.GroupKey != "" {
		entry.GroupKey = n.GroupKey
	}

	if err := e.store.Save(ctx, entry); err != nil {
		return Entry{}, err
	}
	e.index(entry.GroupKey, fp)
	return entry, nil
}

func (e *Engine) index(key, fp string) {
	if key == "" {
		return
	}
	set, ok := e.groups[key]
	if !ok {
		set = make(map[string]struct{})
		e.groups[key] = set
	}
	set[fp] = struct{}{}
}
