package dto

import (
	"delivery-dispatch-service/internal/domain"
)

type OptimizeRouteRequest struct {
	// Start defaults to the depot when omitted.
	Start     *domain.GeoPoint  `json:"start"`
	OrderIDs  []int64           `json:"order_ids"`
	Incidents []domain.Incident `json:"incidents"`
}

type DirectionsRequest struct {
	From domain.GeoPoint `json:"from"`
	To   domain.GeoPoint `json:"to"`
}

type RerouteRequest struct {
	OrderID          int64             `json:"order_id"`
	Route            *domain.RoutePlan `json:"route"`
	IncidentLocation domain.GeoPoint   `json:"incident_location"`
	Severity         string            `json:"severity"`
}

type DriverRoutesResponse struct {
	Plans map[string]*domain.RoutePlan `json:"plans"`
}

type IncidentRequest struct {
	Location         domain.GeoPoint `json:"location"`
	RadiusMeters     float64         `json:"radius_meters"`
	Severity         string          `json:"severity"`
	DelayMinutes     float64         `json:"delay_minutes"`
	Description      string          `json:"description"`
	ExpiresInMinutes int             `json:"expires_in_minutes"`
}
