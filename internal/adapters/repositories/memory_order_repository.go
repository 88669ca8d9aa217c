package repositories

import (
	"cmp"
	"context"
	"delivery-dispatch-service/internal/domain"
	"errors"
	"slices"
	"sync"
)

// MemoryOrderRepository is an arena of orders keyed by id. Every read and
// write copies, so callers never share state with the arena.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[int64]*domain.DeliveryOrder
	nextID int64
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[int64]*domain.DeliveryOrder)}
}

func (m *MemoryOrderRepository) Get(ctx context.Context, id int64) (*domain.DeliveryOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NotFound("order", id)
	}
	return o.Clone(), nil
}

func (m *MemoryOrderRepository) List(ctx context.Context) ([]*domain.DeliveryOrder, error) {
	m.mu.RLock()
	out := make([]*domain.DeliveryOrder, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.DeliveryOrder) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryOrderRepository) Upsert(ctx context.Context, order *domain.DeliveryOrder) error {
	if order == nil || order.ID <= 0 {
		return errors.New("memory order repository: upsert requires a positive id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order.Clone()
	if order.ID > m.nextID {
		m.nextID = order.ID
	}
	return nil
}

func (m *MemoryOrderRepository) Create(ctx context.Context, order *domain.DeliveryOrder) (int64, error) {
	if order == nil {
		return 0, errors.New("memory order repository: order is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := order.Clone()
	c.ID = m.nextID
	m.orders[c.ID] = c
	return c.ID, nil
}
