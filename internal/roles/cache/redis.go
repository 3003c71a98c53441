package cache

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"greenchain/internal/roles/models"
	"greenchain/pkg/domain"
)

var lookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "greenchain_role_cache_lookup_duration_ms",
	Help:    "Latency of role cache lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	// Redis key prefix for per-account capability hashes
	roleKeyPrefix = "roles:account:"

	// DefaultTTL bounds staleness when an invalidation is lost.
	DefaultTTL = 5 * time.Minute
)

// Redis is a Redis-backed Store shared across coordinator instances.
// Each account maps to one hash keyed by role name, expiring as a unit so a
// membership change never leaves a partially fresh account behind.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithTTL overrides the cache entry lifetime.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// NewRedis constructs a Redis-backed capability cache.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func roleKey(account domain.Address) string {
	return roleKeyPrefix + string(account)
}

func (r *Redis) Get(ctx context.Context, account domain.Address, kind models.Kind) (bool, bool, error) {
	start := time.Now()
	defer func() {
		lookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	val, err := r.client.HGet(ctx, roleKey(account), string(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (r *Redis) Set(ctx context.Context, account domain.Address, kind models.Kind, value bool) error {
	marker := "0"
	if value {
		marker = "1"
	}
	key := roleKey(account)
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, string(kind), marker)
	pipe.Expire(ctx, key, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) InvalidateAccount(ctx context.Context, account domain.Address) error {
	return r.client.Del(ctx, roleKey(account)).Err()
}
