package domain

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(s); sev {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return sev, nil
	}
	return "", Invalid("severity", "unknown severity %q", s)
}

// Incident is a reported traffic disruption around a point.
type Incident struct {
	ID           string    `json:"id" yaml:"id"`
	Location     GeoPoint  `json:"location" yaml:"location"`
	RadiusMeters float64   `json:"radius_meters" yaml:"radius_meters"`
	Severity     Severity  `json:"severity" yaml:"severity"`
	DelayMinutes float64   `json:"delay_minutes" yaml:"delay_minutes"`
	Description  string    `json:"description,omitempty" yaml:"description"`
	ReportedAt   time.Time `json:"reported_at" yaml:"-"`
	ExpiresAt    time.Time `json:"expires_at,omitzero" yaml:"-"`
}

// Active reports whether the incident has not expired at now.
func (i Incident) Active(now time.Time) bool {
	return i.ExpiresAt.IsZero() || now.Before(i.ExpiresAt)
}

const (
	ZoneSchool          = "school"
	ZoneConstruction    = "construction"
	ZoneTrafficIncident = "traffic_incident"
)

// Zone is an area where routing is discouraged. ActiveHours is "H-H" or "24".
type Zone struct {
	Center       GeoPoint `json:"center" yaml:"center"`
	RadiusMeters float64  `json:"radius_meters" yaml:"radius_meters"`
	Type         string   `json:"type" yaml:"type"`
	ActiveHours  string   `json:"active_hours" yaml:"active_hours"`
}
