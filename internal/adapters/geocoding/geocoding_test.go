package geocoding

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var depot = domain.GeoPoint{Lat: 33.4484, Lng: -112.0740}

func TestMockGeocoderDeterministicNearOrigin(t *testing.T) {
	g := NewMockGeocoder(depot, nil)
	ctx := context.Background()

	a, err := g.Resolve(ctx, "100  N Central Ave")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, _ := g.Resolve(ctx, "100 n central ave")
	if a != b {
		t.Fatalf("same address resolved to %+v and %+v", a, b)
	}
	if d := geo.Distance(depot, a); d > 3 {
		t.Fatalf("distance from origin = %.2f km, want <= 3", d)
	}

	if _, err := g.Resolve(ctx, "   "); !isNotFound(err) {
		t.Fatalf("empty address: err = %v, want NotFoundError", err)
	}
}

func TestMockGeocoderStrict(t *testing.T) {
	pin := domain.GeoPoint{Lat: 1, Lng: 1}
	g := NewMockGeocoder(depot, map[string]domain.GeoPoint{"Pinned Rd": pin})
	g.Strict = true

	if p, err := g.Resolve(context.Background(), "pinned rd"); err != nil || p != pin {
		t.Fatalf("pinned = %+v, %v", p, err)
	}
	if _, err := g.Resolve(context.Background(), "Elsewhere"); !isNotFound(err) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func isNotFound(err error) bool {
	var nf *domain.NotFoundError
	return errors.As(err, &nf)
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]domain.GeoPoint
}

func (c *mapCache) GetMany(ctx context.Context, addrs []string) (map[string]domain.GeoPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]domain.GeoPoint{}
	for _, a := range addrs {
		if p, ok := c.m[a]; ok {
			out[a] = p
		}
	}
	return out, nil
}

func (c *mapCache) PutMany(ctx context.Context, in map[string]domain.GeoPoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range in {
		c.m[k] = v
	}
	return nil
}

type countingGeocoder struct {
	calls atomic.Int32
	next  *MockGeocoder
}

func (c *countingGeocoder) Resolve(ctx context.Context, address string) (domain.GeoPoint, error) {
	c.calls.Add(1)
	time.Sleep(5 * time.Millisecond)
	return c.next.Resolve(ctx, address)
}

func TestCachedGeocoderCollapsesLookups(t *testing.T) {
	upstream := &countingGeocoder{next: NewMockGeocoder(depot, nil)}
	cache := &mapCache{m: map[string]domain.GeoPoint{}}
	g := NewCachedGeocoder(upstream, cache)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Resolve(context.Background(), "7 Elm St"); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := g.Resolve(context.Background(), " 7  Elm St "); err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	// Concurrent callers may race past the cache check, but singleflight
	// keeps the count below the number of callers.
	if n := upstream.calls.Load(); n < 1 || n >= 8 {
		t.Fatalf("upstream calls = %d, want between 1 and 7", n)
	}
	if _, ok := cache.m["7 Elm St"]; !ok {
		t.Fatalf("result not written to cache")
	}
}

func TestORSGeocoderRetriesAndParses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key" {
			t.Errorf("missing api key header")
		}
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Query().Get("text") == "Nowhere" {
			_, _ = w.Write([]byte(`{"features":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"features":[{"geometry":{"coordinates":[-112.07,33.45]}}]}`))
	}))
	defer srv.Close()

	g, err := NewORSGeocoder("key", srv.URL, "US")
	if err != nil {
		t.Fatalf("new geocoder: %v", err)
	}
	g.client.Backoff = time.Millisecond

	p, err := g.Resolve(context.Background(), "1  Main St")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Lat != 33.45 || p.Lng != -112.07 {
		t.Fatalf("point = %+v, want lat 33.45 lng -112.07", p)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2 (one retry)", hits.Load())
	}

	if _, err := g.Resolve(context.Background(), "Nowhere"); !isNotFound(err) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}
