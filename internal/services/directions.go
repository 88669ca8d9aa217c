package services

import (
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
)

// cannedSteps is a fixed itinerary template; each share scales the real totals.
var cannedSteps = []struct {
	instruction string
	share       float64
}{
	{"Head out toward the main road", 0.1},
	{"Continue straight on the main road", 0.4},
	{"Turn toward the destination area", 0.4},
	{"Arrive at the destination", 0.1},
}

// GetDirections returns a stub turn-by-turn response. Steps are not derived
// from map data; only the totals reflect the real distance between the points.
func (o *RouteOptimizer) GetDirections(from, to domain.GeoPoint) domain.Directions {
	dist := geo.Distance(from, to)
	dur := dist / averageSpeedKmh * 60

	steps := make([]domain.DirectionStep, 0, len(cannedSteps))
	for _, s := range cannedSteps {
		steps = append(steps, domain.DirectionStep{
			Instruction:     s.instruction,
			DistanceKm:      dist * s.share,
			DurationMinutes: dur * s.share,
		})
	}
	return domain.Directions{DistanceKm: dist, DurationMinutes: dur, Steps: steps}
}
