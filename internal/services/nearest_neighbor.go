package services

import (
	"cmp"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
	"math"
	"slices"
	"time"
)

// urgentDiscount shrinks an urgent stop's leg cost when comparing candidates.
const urgentDiscount = 0.7

// sortByPriority orders a cluster urgent-first. Among urgent stops, when
// incidents are active, the one whose approach from start is least affected
// comes first. Remaining ties fall to the earliest window start (a missing
// window sorts as the zero time) and finally to order id.
func sortByPriority(points []domain.DeliveryPoint, start domain.GeoPoint, incidents []domain.Incident) {
	slices.SortStableFunc(points, func(a, b domain.DeliveryPoint) int {
		if a.Urgent() != b.Urgent() {
			if a.Urgent() {
				return -1
			}
			return 1
		}
		if a.Urgent() && len(incidents) > 0 {
			ia := geo.IncidentImpact(start, a.Location, incidents)
			ib := geo.IncidentImpact(start, b.Location, incidents)
			if c := cmp.Compare(ia, ib); c != 0 {
				return c
			}
		}
		if c := windowStart(a).Compare(windowStart(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.OrderID, b.OrderID)
	})
}

func windowStart(p domain.DeliveryPoint) time.Time {
	if p.DeliveryWindow == nil {
		return time.Time{}
	}
	return p.DeliveryWindow.Start
}

// Order a cluster's stops using a greedy, traffic-aware nearest-neighbor walk.
//
// At each step the unvisited stop with the lowest traffic-adjusted leg cost is
// chosen; urgent stops have their cost discounted. Stops inside an active
// restricted zone are skipped while any unrestricted stop remains; once only
// restricted stops are left they are appended in priority order.
//
// An urgent stop is never left behind every normal stop: when the last
// unrestricted normal stop would be taken while urgent stops are still
// waiting, the best urgent stop is taken instead.
//
// Candidates are expected in sortByPriority order; equal costs keep that order.
func nearestNeighborRoute(
	start domain.GeoPoint,
	points []domain.DeliveryPoint,
	incidents []domain.Incident,
	zones *geo.ZoneRegistry,
	now time.Time,
) []domain.DeliveryPoint {
	remaining := slices.Clone(points)
	route := make([]domain.DeliveryPoint, 0, len(points))
	current := start

	for len(remaining) > 0 {
		open := make([]int, 0, len(remaining))
		normalOpen, urgentOpen := 0, 0
		for i, p := range remaining {
			if zones != nil && zones.IsRestricted(p.Location, now) {
				continue
			}
			open = append(open, i)
			if p.Urgent() {
				urgentOpen++
			} else {
				normalOpen++
			}
		}

		if len(open) == 0 {
			route = append(route, remaining...)
			break
		}

		best := -1
		bestCost := math.Inf(1)
		bestUrgent := -1
		bestUrgentCost := math.Inf(1)

		// Select next stop by minimum adjusted cost (greedy step).
		for _, i := range open {
			p := remaining[i]
			c := geo.DistanceWithTraffic(current, p.Location, incidents, now)
			if p.Urgent() {
				c *= urgentDiscount
				if c < bestUrgentCost {
					bestUrgentCost = c
					bestUrgent = i
				}
			}
			if c < bestCost {
				bestCost = c
				best = i
			}
		}

		if urgentOpen > 0 && normalOpen == 1 && !remaining[best].Urgent() {
			best = bestUrgent
		}

		next := remaining[best]
		route = append(route, next)
		remaining = slices.Delete(remaining, best, best+1)
		current = next.Location
	}

	return route
}
