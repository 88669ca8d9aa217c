package ports

import (
	"context"

	"delivery-dispatch-service/internal/domain"
)

// Port: a boundary for loading and storing DeliveryOrder entities.
// Implementations hand out copies; callers mutate a copy and Upsert it back.
type OrderRepository interface {
	// Get returns a *domain.NotFoundError when the order does not exist.
	Get(ctx context.Context, id int64) (*domain.DeliveryOrder, error)
	// List returns every stored order ordered by id.
	List(ctx context.Context) ([]*domain.DeliveryOrder, error)
	Upsert(ctx context.Context, order *domain.DeliveryOrder) error
	// Create assigns a fresh id and stores the order.
	Create(ctx context.Context, order *domain.DeliveryOrder) (int64, error)
}
