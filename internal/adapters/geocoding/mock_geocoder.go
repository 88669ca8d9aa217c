package geocoding

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"hash/fnv"
	"strings"
)

// MockGeocoder resolves addresses without a network. Pinned addresses return
// their pin; any other address hashes to a stable point within about 2 km
// of Origin, unless Strict is set, in which case it is not found.
type MockGeocoder struct {
	Origin domain.GeoPoint
	Pins   map[string]domain.GeoPoint
	Strict bool
}

// maxOffsetDeg keeps generated points within roughly 2 km of Origin.
const maxOffsetDeg = 0.018

func NewMockGeocoder(origin domain.GeoPoint, pins map[string]domain.GeoPoint) *MockGeocoder {
	norm := make(map[string]domain.GeoPoint, len(pins))
	for addr, p := range pins {
		norm[strings.ToLower(Normalize(addr))] = p
	}
	return &MockGeocoder{Origin: origin, Pins: norm}
}

func (m *MockGeocoder) Resolve(ctx context.Context, address string) (domain.GeoPoint, error) {
	if err := ctx.Err(); err != nil {
		return domain.GeoPoint{}, err
	}
	key := strings.ToLower(Normalize(address))
	if key == "" {
		return domain.GeoPoint{}, domain.NotFound("address", address)
	}
	if p, ok := m.Pins[key]; ok {
		return p, nil
	}
	if m.Strict {
		return domain.GeoPoint{}, domain.NotFound("address", address)
	}

	h := fnv.New64a()
	h.Write([]byte(key))
	sum := h.Sum64()

	// Two 32-bit halves map to [-1, 1) offsets.
	latUnit := float64(sum>>32)/float64(1<<31) - 1
	lngUnit := float64(sum&0xffffffff)/float64(1<<31) - 1
	return domain.GeoPoint{
		Lat: m.Origin.Lat + latUnit*maxOffsetDeg,
		Lng: m.Origin.Lng + lngUnit*maxOffsetDeg,
	}, nil
}
