package ports

import (
	"context"

	"delivery-dispatch-service/internal/domain"
)

// Contract for resolving a free-form delivery address into coordinates.
type GeocodingProvider interface {
	// Resolve returns a *domain.NotFoundError when the address has no match.
	Resolve(ctx context.Context, address string) (domain.GeoPoint, error)
}

// GeocodeCache stores address -> coordinate lookups. Address keys are
// expected to be normalized by the caller.
type GeocodeCache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.GeoPoint, error)
	PutMany(ctx context.Context, results map[string]domain.GeoPoint) error
}
