package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the redis connection used by the shared dedup store.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	KeyPrefix      string        `env:"DEDUP_REDIS_PREFIX" envDefault:"dedup:"`
}

// ConnectRedis opens a client and retries until the server answers a ping.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisURL, err)
	}

	for range max(cfg.RetryAttempts, 1) {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}

// RedisHealthcheck returns a readiness probe for the client.
func RedisHealthcheck(client redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrRedisHealthcheckFailed, err)
		}
		return nil
	}
}

// RedisStore shares dedup entries between processes.
// Entries are JSON strings with a TTL of the dedup window; a sorted set scored
// by LastSeenAt (microseconds) provides the eviction and sweep order.
type RedisStore struct {
	client     redis.Cmdable
	prefix     string
	maxEntries int
	ttl        time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisKeyPrefix sets the key prefix. Defaults to "dedup:".
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisMaxEntries caps the number of tracked fingerprints.
func WithRedisMaxEntries(n int) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithRedisTTL sets the expiry of entry keys. Zero keeps keys until swept.
func WithRedisTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore creates a store on top of the given client.
func NewRedisStore(client redis.Cmdable, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:     client,
		prefix:     "dedup:",
		maxEntries: 10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) entryKey(fp string) string { return s.prefix + "entry:" + fp }
func (s *RedisStore) indexKey() string          { return s.prefix + "index" }

func (s *RedisStore) Get(ctx context.Context, fp string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.entryKey(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Join(ErrStoreFailure, err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, errors.Join(ErrStoreFailure, fmt.Errorf("decode entry %s: %w", fp, err))
	}
	return e, true, nil
}

func (s *RedisStore) Save(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(e.Fingerprint), raw, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(e.LastSeenAt.UnixMicro()), Member: e.Fingerprint})
	card := pipe.ZCard(ctx, s.indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}

	if over := card.Val() - int64(s.maxEntries); over > 0 {
		evicted, err := s.client.ZPopMin(ctx, s.indexKey(), over).Result()
		if err != nil {
			return errors.Join(ErrStoreFailure, err)
		}
		if err := s.deleteEntries(ctx, evicted); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, fp string) error {
	return s.deleteEntries(ctx, []redis.Z{{Member: fp}})
}

func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	// Exclusive upper bound: entries seen exactly at cutoff survive.
	members, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Join(ErrStoreFailure, err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Member: m}
	}
	if err := s.deleteEntries(ctx, zs); err != nil {
		return 0, err
	}
	return len(members), nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, errors.Join(ErrStoreFailure, err)
	}
	return int(n), nil
}

func (s *RedisStore) deleteEntries(ctx context.Context, zs []redis.Z) error {
	if len(zs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(zs))
	members := make([]any, 0, len(zs))
	for _, z := range zs {
		fp, _ := z.Member.(string)
		keys = append(keys, s.entryKey(fp))
		members = append(members, fp)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}
