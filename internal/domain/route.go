package domain

import "time"

// Represents a single routable stop derived from a delivery order.
type DeliveryPoint struct {
	OrderID        int64       `json:"order_id"`
	Location       GeoPoint    `json:"location"`
	Priority       Priority    `json:"priority"`
	DeliveryWindow *TimeWindow `json:"delivery_window,omitempty"`
	Customer       Customer    `json:"customer"`
}

func (p DeliveryPoint) Urgent() bool { return p.Priority == PriorityUrgent }

// AvoidedZone flags a stop that sits inside a restricted zone. Flagged stops
// stay in the plan unless the optimizer is configured to exclude them.
type AvoidedZone struct {
	OrderID  int64    `json:"order_id"`
	ZoneType string   `json:"zone_type"`
	Center   GeoPoint `json:"center"`
}

// Represents the planned itinerary for one driver or planning request.
// A RoutePlan is the output of the route optimizer and contains no side effects.
type RoutePlan struct {
	Start                GeoPoint          `json:"start"`
	Stops                []DeliveryPoint   `json:"stops"`
	TotalDistanceKm      float64           `json:"total_distance_km"`
	EstimatedTimeMinutes float64           `json:"estimated_time_minutes"`
	Clusters             int               `json:"clusters"`
	AvoidedZones         []AvoidedZone     `json:"avoided_zones"`
	ExcludedStops        []DeliveryPoint   `json:"excluded_stops,omitempty"`
	TrafficIncidents     []Incident        `json:"traffic_incidents"`
	ReroutedOrders       []int64           `json:"rerouted_orders"`
	AlternativeRoutes    []RerouteProposal `json:"alternative_routes"`
	UnresolvedOrders     []int64           `json:"unresolved_orders,omitempty"`
	PlannedAt            time.Time         `json:"planned_at"`
}

// StopIndex returns the position of orderID in the plan, or -1.
func (p *RoutePlan) StopIndex(orderID int64) int {
	for i, s := range p.Stops {
		if s.OrderID == orderID {
			return i
		}
	}
	return -1
}

// RerouteProposal is a detour suggestion around an incident. It is never
// applied automatically; a dispatcher must approve it.
type RerouteProposal struct {
	OrderID               int64     `json:"order_id"`
	IncidentLocation      GeoPoint  `json:"incident_location"`
	Severity              Severity  `json:"severity"`
	OriginalDistanceKm    float64   `json:"original_distance_km"`
	AlternativeDistanceKm float64   `json:"alternative_distance_km"`
	AdditionalDistanceKm  float64   `json:"additional_distance_km"`
	AdditionalTimeMinutes float64   `json:"additional_time_minutes"`
	Approved              bool      `json:"approved"`
	Reason                string    `json:"reason"`
	ProposedAt            time.Time `json:"proposed_at"`
}

type DirectionStep struct {
	Instruction     string  `json:"instruction"`
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
}

type Directions struct {
	DistanceKm      float64         `json:"distance_km"`
	DurationMinutes float64         `json:"duration_minutes"`
	Steps           []DirectionStep `json:"steps"`
}
