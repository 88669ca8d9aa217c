package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

const planWorkers = 5

// PlanDriverRoutes optimises each driver's open assignments starting from the
// driver's last reported position. Plans run in parallel; the first failure
// cancels the rest.
func (s *DeliveryService) PlanDriverRoutes(
	ctx context.Context,
	driverIDs []string,
) (_ map[string]*domain.RoutePlan, err error) {
	defer obs.Time(ctx, "deliveries.PlanDriverRoutes")(&err)

	if s.optimizer == nil {
		return nil, errors.New("plan driver routes: optimizer is not configured")
	}
	if len(driverIDs) == 0 {
		return nil, domain.Invalid("driver_id", "at least one driver is required")
	}

	orders, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan driver routes: list orders: %w", err)
	}

	byDriver := make(map[string][]*domain.DeliveryOrder, len(driverIDs))
	for _, o := range orders {
		if o.AssignedDriver != "" && !o.DeliveryStatus.Terminal() {
			byDriver[o.AssignedDriver] = append(byDriver[o.AssignedDriver], o)
		}
	}

	// Resolve every start point up front so a missing fix fails before any work.
	starts := make(map[string]domain.GeoPoint, len(driverIDs))
	for _, id := range driverIDs {
		loc, err := s.DriverLocation(id)
		if err != nil {
			return nil, fmt.Errorf("plan driver routes: %w", err)
		}
		starts[id] = loc.Location
	}

	var mu sync.Mutex
	plans := make(map[string]*domain.RoutePlan, len(driverIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(planWorkers)
	for _, id := range driverIDs {
		g.Go(func() error {
			plan, err := s.optimizer.OptimizeRoute(gctx, starts[id], byDriver[id], nil)
			if err != nil {
				return fmt.Errorf("plan driver routes: driver %q: %w", id, err)
			}
			mu.Lock()
			plans[id] = plan
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}
