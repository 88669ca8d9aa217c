// Package geo holds the pure geographic primitives used by routing:
// great-circle distance, time-of-day traffic and incident impact.
package geo

import (
	"math"
	"time"

	"delivery-dispatch-service/internal/domain"
)

const earthRadiusKm = 6371.0

// maxIncidentImpact caps the incident contribution so a leg is at most 3x its
// traffic-adjusted length.
const maxIncidentImpact = 2.0

// Distance returns the haversine great-circle distance between a and b in km.
func Distance(a, b domain.GeoPoint) float64 {
	if a == b {
		return 0
	}
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// TrafficMultiplier scales travel cost by hour of day (0-23).
func TrafficMultiplier(hour int) float64 {
	switch {
	case (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19):
		return 1.4
	case hour >= 11 && hour <= 14:
		return 1.2
	case hour >= 22 || hour <= 6:
		return 0.8
	default:
		return 1.0
	}
}

func SeverityFactor(s domain.Severity) float64 {
	switch s {
	case domain.SeverityHigh:
		return 0.8
	case domain.SeverityMedium:
		return 0.4
	case domain.SeverityLow:
		return 0.2
	}
	return 0
}

// IncidentImpact sums the contribution of every incident whose radius covers
// the nearer endpoint of the a->b leg. Closer to the incident centre weighs
// more. The result is capped at 2.0.
func IncidentImpact(a, b domain.GeoPoint, incidents []domain.Incident) float64 {
	impact := 0.0
	for _, inc := range incidents {
		radiusKm := inc.RadiusMeters / 1000
		if radiusKm <= 0 {
			continue
		}
		d := math.Min(Distance(inc.Location, a), Distance(inc.Location, b))
		if d > radiusKm {
			continue
		}
		impact += SeverityFactor(inc.Severity) * (1 - d/radiusKm)
	}
	return math.Min(impact, maxIncidentImpact)
}

// DistanceWithTraffic is the routing cost of a leg at time now.
func DistanceWithTraffic(a, b domain.GeoPoint, incidents []domain.Incident, now time.Time) float64 {
	return Distance(a, b) * TrafficMultiplier(now.Hour()) * (1 + IncidentImpact(a, b, incidents))
}
