package cache

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGeocodeCache keeps one key per address with an expiry, so stale
// coordinates age out on their own.
type RedisGeocodeCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisGeocodeCache(client *redis.Client, prefix string, ttl time.Duration) *RedisGeocodeCache {
	return &RedisGeocodeCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisGeocodeCache) GetMany(ctx context.Context, addresses []string) (_ map[string]domain.GeoPoint, err error) {
	defer obs.Time(ctx, "geocode.redis.GetMany")(&err)

	uniq := uniqueAddresses(addresses)
	out := make(map[string]domain.GeoPoint, len(uniq))
	if len(uniq) == 0 {
		return out, nil
	}

	keys := make([]string, len(uniq))
	for i, a := range uniq {
		keys[i] = c.prefix + a
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: mget: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p domain.GeoPoint
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			log.Printf("op=geocode.redis.GetMany addr=%q skip=undecodable err=%v", uniq[i], err)
			continue
		}
		out[uniq[i]] = p
	}
	return out, nil
}

func (c *RedisGeocodeCache) PutMany(ctx context.Context, results map[string]domain.GeoPoint) (err error) {
	defer obs.Time(ctx, "geocode.redis.PutMany")(&err)

	if len(results) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for addr, p := range results {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("insert geocode cache addr=%q: %w", addr, err)
		}
		pipe.Set(ctx, c.prefix+addr, b, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert geocode cache: pipeline: %w", err)
	}
	return nil
}
