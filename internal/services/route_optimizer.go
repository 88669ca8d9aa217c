package services

import (
	"cmp"
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	averageSpeedKmh       = 25.0
	minutesPerStop        = 5.0
	defaultGeocodeWorkers = 5
)

type OptimizerOptions struct {
	// ClusterRadiusKm is the seed radius for clustering; <= 0 means 2 km.
	ClusterRadiusKm float64
	// ExcludeRestricted moves stops inside active restricted zones out of the
	// itinerary into RoutePlan.ExcludedStops. By default they are only flagged.
	ExcludeRestricted bool
	// GeocodeWorkers bounds concurrent address lookups; <= 0 means 5.
	GeocodeWorkers int
}

// RouteOptimizer turns a set of delivery orders into a single ordered itinerary.
// It reads shared state only and is safe for concurrent planning requests.
type RouteOptimizer struct {
	geocoder  ports.GeocodingProvider
	incidents ports.IncidentProvider
	zones     *geo.ZoneRegistry
	opts      OptimizerOptions
	now       func() time.Time
}

// NewRouteOptimizer wires the optimizer. incidents may be nil; a nil zone
// registry is replaced by an empty one.
func NewRouteOptimizer(
	geocoder ports.GeocodingProvider,
	incidents ports.IncidentProvider,
	zones *geo.ZoneRegistry,
	opts OptimizerOptions,
) *RouteOptimizer {
	if zones == nil {
		zones, _ = geo.NewZoneRegistry(nil)
	}
	if opts.GeocodeWorkers <= 0 {
		opts.GeocodeWorkers = defaultGeocodeWorkers
	}
	return &RouteOptimizer{
		geocoder:  geocoder,
		incidents: incidents,
		zones:     zones,
		opts:      opts,
		now:       time.Now,
	}
}

// WithClock overrides the optimizer's time source. Used by tests and replays.
func (o *RouteOptimizer) WithClock(now func() time.Time) *RouteOptimizer {
	o.now = now
	return o
}

// OptimizeRoute plans one itinerary starting at start.
//
// Orders are geocoded, clustered, ordered within each cluster by priority and
// traffic-aware nearest neighbor, and the clusters are visited nearest first.
// Orders whose address cannot be resolved are reported in UnresolvedOrders
// instead of failing the plan.
func (o *RouteOptimizer) OptimizeRoute(
	ctx context.Context,
	start domain.GeoPoint,
	orders []*domain.DeliveryOrder,
	incidents []domain.Incident,
) (_ *domain.RoutePlan, err error) {
	defer obs.Time(ctx, "routes.OptimizeRoute")(&err)

	now := o.now()
	plan := &domain.RoutePlan{
		Start:             start,
		Stops:             []domain.DeliveryPoint{},
		AvoidedZones:      []domain.AvoidedZone{},
		TrafficIncidents:  []domain.Incident{},
		ReroutedOrders:    []int64{},
		AlternativeRoutes: []domain.RerouteProposal{},
		PlannedAt:         now,
	}
	if len(orders) == 0 {
		return plan, nil
	}

	if start.IsZero() || !start.IsValid() {
		return nil, &domain.LocationUnavailableError{Subject: "route start"}
	}

	active := o.activeIncidents(ctx, incidents, now)
	zones := o.zones.WithIncidents(active)
	plan.TrafficIncidents = active

	points, unresolved, err := o.resolvePoints(ctx, orders)
	if err != nil {
		return nil, fmt.Errorf("optimize route: %w", err)
	}
	plan.UnresolvedOrders = unresolved

	clusters := ClusterDeliveries(points, o.opts.ClusterRadiusKm)
	plan.Clusters = len(clusters)

	routes := make([][]domain.DeliveryPoint, 0, len(clusters))
	for _, c := range clusters {
		sortByPriority(c, start, active)
		routes = append(routes, nearestNeighborRoute(start, c, active, zones, now))
	}

	// Visit clusters nearest first, measured to each cluster's first stop.
	slices.SortStableFunc(routes, func(a, b []domain.DeliveryPoint) int {
		if c := cmp.Compare(geo.Distance(start, a[0].Location), geo.Distance(start, b[0].Location)); c != 0 {
			return c
		}
		return cmp.Compare(a[0].OrderID, b[0].OrderID)
	})
	for _, r := range routes {
		plan.Stops = append(plan.Stops, r...)
	}

	for _, s := range plan.Stops {
		if z, ok := zones.ZoneAt(s.Location, now); ok {
			plan.AvoidedZones = append(plan.AvoidedZones, domain.AvoidedZone{
				OrderID:  s.OrderID,
				ZoneType: z.Type,
				Center:   z.Center,
			})
		}
	}
	if o.opts.ExcludeRestricted && len(plan.AvoidedZones) > 0 {
		kept := plan.Stops[:0:0]
		for _, s := range plan.Stops {
			if zones.IsRestricted(s.Location, now) {
				plan.ExcludedStops = append(plan.ExcludedStops, s)
				continue
			}
			kept = append(kept, s)
		}
		plan.Stops = kept
	}

	plan.TotalDistanceKm = routeDistance(start, plan.Stops)
	plan.EstimatedTimeMinutes = estimateMinutes(plan.TotalDistanceKm, len(plan.Stops), active)

	prev := start
	for _, s := range plan.Stops {
		if inc, ok := strongestIncident(prev, s.Location, active); ok {
			plan.ReroutedOrders = append(plan.ReroutedOrders, s.OrderID)
			proposal, err := o.RerouteForIncident(s.OrderID, plan, inc.Location, string(inc.Severity))
			if err != nil {
				return nil, fmt.Errorf("optimize route: reroute order %d: %w", s.OrderID, err)
			}
			plan.AlternativeRoutes = append(plan.AlternativeRoutes, *proposal)
		}
		prev = s.Location
	}

	obs.RoutePlansTotal.Inc()
	return plan, nil
}

// activeIncidents merges caller-supplied incidents with the provider feed.
// Feed failures degrade to caller incidents only.
func (o *RouteOptimizer) activeIncidents(ctx context.Context, supplied []domain.Incident, now time.Time) []domain.Incident {
	all := slices.Clone(supplied)
	if o.incidents != nil {
		fetched, err := o.incidents.ActiveIncidents(ctx)
		if err != nil {
			log.Printf("req_id=%s op=routes.activeIncidents err=%v fallback=no_feed", obs.RequestID(ctx), err)
		} else {
			all = append(all, fetched...)
		}
	}

	seen := make(map[string]struct{}, len(all))
	out := make([]domain.Incident, 0, len(all))
	for _, inc := range all {
		if !inc.Active(now) {
			continue
		}
		if inc.ID != "" {
			if _, ok := seen[inc.ID]; ok {
				continue
			}
			seen[inc.ID] = struct{}{}
		}
		out = append(out, inc)
	}
	return out
}

// resolvePoints geocodes orders with bounded parallelism, preserving input order.
func (o *RouteOptimizer) resolvePoints(
	ctx context.Context,
	orders []*domain.DeliveryOrder,
) ([]domain.DeliveryPoint, []int64, error) {
	locs := make([]domain.GeoPoint, len(orders))
	missing := make([]bool, len(orders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.GeocodeWorkers)

	for i, order := range orders {
		g.Go(func() error {
			loc, err := o.geocoder.Resolve(gctx, order.DeliveryAddress)
			if err != nil {
				var nf *domain.NotFoundError
				if errors.As(err, &nf) {
					missing[i] = true
					return nil
				}
				return fmt.Errorf("geocode order %d: %w", order.ID, err)
			}
			locs[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	points := make([]domain.DeliveryPoint, 0, len(orders))
	var unresolved []int64
	for i, order := range orders {
		if missing[i] {
			unresolved = append(unresolved, order.ID)
			continue
		}
		p := domain.DeliveryPoint{
			OrderID:  order.ID,
			Location: locs[i],
			Priority: order.Priority,
			Customer: order.Customer,
		}
		if order.DeliveryWindow != nil {
			w := *order.DeliveryWindow
			p.DeliveryWindow = &w
		}
		points = append(points, p)
	}
	return points, unresolved, nil
}

// routeDistance is the plain haversine length of start -> stops[0] -> ... -> last.
func routeDistance(start domain.GeoPoint, stops []domain.DeliveryPoint) float64 {
	total := 0.0
	prev := start
	for _, s := range stops {
		total += geo.Distance(prev, s.Location)
		prev = s.Location
	}
	return total
}

func estimateMinutes(distanceKm float64, stops int, incidents []domain.Incident) float64 {
	minutes := distanceKm/averageSpeedKmh*60 + minutesPerStop*float64(stops)
	for _, inc := range incidents {
		minutes += inc.DelayMinutes
	}
	return minutes
}

// strongestIncident returns the incident contributing most to the a->b leg.
func strongestIncident(a, b domain.GeoPoint, incidents []domain.Incident) (domain.Incident, bool) {
	var best domain.Incident
	bestImpact := 0.0
	for _, inc := range incidents {
		if impact := geo.IncidentImpact(a, b, []domain.Incident{inc}); impact > bestImpact {
			best, bestImpact = inc, impact
		}
	}
	return best, bestImpact > 0
}
