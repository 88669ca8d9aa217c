package domain

import "math"

// Immutable geographic point (latitude, longitude) in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the point was never set. A zero point is treated as
// "location unknown" rather than the Gulf of Guinea.
func (p GeoPoint) IsZero() bool { return p.Lat == 0 && p.Lng == 0 }

func (p GeoPoint) IsValid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 &&
		p.Lng >= -180 && p.Lng <= 180
}

// Return coordinates as [lon, lat] for external API compatibility.
func (p GeoPoint) CoordsToList() []float64 { return []float64{p.Lng, p.Lat} }
