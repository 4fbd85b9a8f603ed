package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/omertoast/pricestream/quotes"
)

const keyPrefix = "quote:"

var _ quotes.Client = &Cache{}

// Cache is a read-through Redis cache in front of a quote source, so that
// many connections polling the same symbol share one upstream request per TTL.
// Only priced quotes are stored.
type Cache struct {
	rdb *redis.Client
	src quotes.Client
	ttl time.Duration
	log *zap.Logger
}

func New(rdb *redis.Client, src quotes.Client, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{rdb: rdb, src: src, ttl: ttl, log: log}
}

func (c *Cache) Quote(ctx context.Context, symbol string) (quotes.Quote, error) {
	key := keyPrefix + strings.ToUpper(strings.TrimSpace(symbol))

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var q quotes.Quote
		if jerr := json.Unmarshal(raw, &q); jerr == nil && q.Price != nil {
			q.Requested = symbol
			return q, nil
		}
		c.log.Warn("discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
	}

	q, err := c.src.Quote(ctx, symbol)
	if err != nil || q.Price == nil {
		return q, err
	}

	b, err := json.Marshal(q)
	if err == nil {
		err = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	if err != nil {
		c.log.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
	return q, nil
}

// Ping reports whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
