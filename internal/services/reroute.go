package services

import (
	"delivery-dispatch-service/internal/domain"
	"fmt"
)

// detourFactor inflates the current route length for a single-detour alternative.
const detourFactor = 1.2

// RerouteForIncident proposes a detour for orderID around an incident.
//
// The alternative is not path-derived: it is the current route distance
// inflated by a fixed detour factor. Proposals always come back unapproved.
func (o *RouteOptimizer) RerouteForIncident(
	orderID int64,
	currentRoute *domain.RoutePlan,
	incidentLocation domain.GeoPoint,
	severity string,
) (*domain.RerouteProposal, error) {
	sev, err := domain.ParseSeverity(severity)
	if err != nil {
		return nil, err
	}
	if currentRoute == nil {
		return nil, domain.Invalid("route", "current route is required")
	}
	idx := currentRoute.StopIndex(orderID)
	if idx < 0 {
		return nil, domain.NotFound("route stop", orderID)
	}

	original := currentRoute.TotalDistanceKm
	if original == 0 {
		original = routeDistance(currentRoute.Start, currentRoute.Stops)
	}
	alternative := original * detourFactor
	extra := alternative - original

	return &domain.RerouteProposal{
		OrderID:               orderID,
		IncidentLocation:      incidentLocation,
		Severity:              sev,
		OriginalDistanceKm:    original,
		AlternativeDistanceKm: alternative,
		AdditionalDistanceKm:  extra,
		AdditionalTimeMinutes: extra / averageSpeedKmh * 60,
		Approved:              false,
		Reason:                fmt.Sprintf("%s severity incident on approach to stop %d", sev, idx+1),
		ProposedAt:            o.now(),
	}, nil
}
