package geocoding

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"log"

	"golang.org/x/sync/singleflight"
)

// CachedGeocoder fronts a provider with a persistent cache. Concurrent
// lookups of the same address share one upstream call. Cache failures are
// logged and bypassed.
type CachedGeocoder struct {
	next  ports.GeocodingProvider
	cache ports.GeocodeCache
	group singleflight.Group
}

func NewCachedGeocoder(next ports.GeocodingProvider, cache ports.GeocodeCache) *CachedGeocoder {
	return &CachedGeocoder{next: next, cache: cache}
}

func (c *CachedGeocoder) Resolve(ctx context.Context, address string) (domain.GeoPoint, error) {
	key := Normalize(address)
	if key == "" {
		return domain.GeoPoint{}, domain.NotFound("address", address)
	}

	hits, err := c.cache.GetMany(ctx, []string{key})
	if err != nil {
		log.Printf("req_id=%s op=geocode.cache.get addr=%q err=%v", obs.RequestID(ctx), key, err)
	} else if p, ok := hits[key]; ok {
		return p, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := c.next.Resolve(ctx, key)
		if err != nil {
			return domain.GeoPoint{}, err
		}
		if err := c.cache.PutMany(ctx, map[string]domain.GeoPoint{key: p}); err != nil {
			log.Printf("req_id=%s op=geocode.cache.put addr=%q err=%v", obs.RequestID(ctx), key, err)
		}
		return p, nil
	})
	if err != nil {
		return domain.GeoPoint{}, err
	}
	return v.(domain.GeoPoint), nil
}
