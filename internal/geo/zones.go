package geo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"delivery-dispatch-service/internal/domain"
)

// ZoneRegistry holds static restricted zones (schools, construction) and the
// zones derived from traffic incidents. It is never mutated after
// construction; WithIncidents derives a new registry instead.
type ZoneRegistry struct {
	static   []domain.Zone
	incident []domain.Zone
}

// NewZoneRegistry validates the static zones' active-hour windows.
func NewZoneRegistry(static []domain.Zone) (*ZoneRegistry, error) {
	for i, z := range static {
		if _, _, err := parseActiveHours(z.ActiveHours); err != nil {
			return nil, fmt.Errorf("zone registry: zone #%d (%s): %w", i+1, z.Type, err)
		}
	}
	return &ZoneRegistry{static: append([]domain.Zone(nil), static...)}, nil
}

// WithIncidents returns a registry holding r's static zones plus one zone per
// incident. r itself is left untouched, so each planning request can carry
// its own incident set.
func (r *ZoneRegistry) WithIncidents(incidents []domain.Incident) *ZoneRegistry {
	zones := make([]domain.Zone, 0, len(incidents))
	for _, inc := range incidents {
		zones = append(zones, domain.Zone{
			Center:       inc.Location,
			RadiusMeters: inc.RadiusMeters,
			Type:         domain.ZoneTrafficIncident,
			ActiveHours:  "24",
		})
	}

	return &ZoneRegistry{static: r.static, incident: zones}
}

// Zones returns a snapshot of all registered zones.
func (r *ZoneRegistry) Zones() []domain.Zone {
	out := make([]domain.Zone, 0, len(r.static)+len(r.incident))
	out = append(out, r.static...)
	return append(out, r.incident...)
}

func (r *ZoneRegistry) IsRestricted(p domain.GeoPoint, now time.Time) bool {
	_, ok := r.ZoneAt(p, now)
	return ok
}

// ZoneAt returns the first zone that covers p and is active at now.
func (r *ZoneRegistry) ZoneAt(p domain.GeoPoint, now time.Time) (domain.Zone, bool) {

	for _, set := range [][]domain.Zone{r.static, r.incident} {
		for _, z := range set {
			if Distance(z.Center, p)*1000 > z.RadiusMeters {
				continue
			}
			if zoneActive(z, now.Hour()) {
				return z, true
			}
		}
	}
	return domain.Zone{}, false
}

// zoneActive checks start <= hour <= end. Windows do not wrap past midnight.
func zoneActive(z domain.Zone, hour int) bool {
	start, end, err := parseActiveHours(z.ActiveHours)
	if err != nil {
		return false
	}
	return hour >= start && hour <= end
}

func parseActiveHours(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "24" || s == "" {
		return 0, 23, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("active hours %q: want \"H-H\" or \"24\"", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return 0, 0, fmt.Errorf("active hours %q: start: %w", s, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return 0, 0, fmt.Errorf("active hours %q: end: %w", s, err)
	}
	if start < 0 || end > 23 || start > end {
		return 0, 0, fmt.Errorf("active hours %q: out of range", s)
	}
	return start, end, nil
}
