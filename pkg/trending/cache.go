package trending

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pkgpulse/pkgpulse/pkg/observability"
)

// CacheConfig configures the two-tier ranking cache.
type CacheConfig struct {
	L1Size        int
	TTL           time.Duration
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// Cache is a two-tier cache for serialized rankings: a per-process
// expirable LRU backed by an optional shared Redis tier. Redis being down
// degrades to L1-only operation rather than failing requests.
type Cache struct {
	l1      *expirable.LRU[string, []byte]
	redis   *redis.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCache builds the cache. An unreachable Redis is logged and skipped.
func NewCache(cfg CacheConfig, logger *observability.Logger, metrics *observability.Metrics) *Cache {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if cfg.L1Size <= 0 {
		cfg.L1Size = 256
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}

	c := &Cache{
		l1:      expirable.NewLRU[string, []byte](cfg.L1Size, nil, cfg.TTL),
		ttl:     cfg.TTL,
		logger:  logger.WithComponent("cache"),
		metrics: metrics,
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			c.logger.WithError(err).Warn("invalid redis URL, running without shared cache")
			return c
		}
		if cfg.RedisPassword != "" {
			opt.Password = cfg.RedisPassword
		}
		if cfg.RedisDB != 0 {
			opt.DB = cfg.RedisDB
		}

		client := redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			c.logger.WithError(err).Warn("redis unreachable, running without shared cache")
			client.Close()
			return c
		}
		c.redis = client
	}

	return c
}

func (c *Cache) observe(tier string, hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

// Get returns the cached value for key, checking L1 before Redis.
// A Redis hit is promoted into L1.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := c.l1.Get(key); ok {
		c.observe("l1", true)
		return value, true
	}
	c.observe("l1", false)

	if c.redis == nil {
		return nil, false
	}

	value, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("redis get failed")
		}
		c.observe("l2", false)
		return nil, false
	}

	c.observe("l2", true)
	c.l1.Add(key, value)
	return value, true
}

// Set stores the value in both tiers. Redis write failures are logged,
// not returned.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	c.l1.Add(key, value)

	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("redis set failed")
	}
}

// InvalidatePrefix drops every cached entry whose key starts with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	for _, key := range c.l1.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.l1.Remove(key)
		}
	}

	if c.redis == nil {
		return
	}

	iter := c.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.WithError(err).Debug("redis del failed")
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Debug("redis scan failed")
	}
}

// Close releases the Redis connection if one was established.
func (c *Cache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
