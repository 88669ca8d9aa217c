// Package traffic provides the incident feed consumed by route planning.
package traffic

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL applies to reported incidents that carry no expiry.
const DefaultTTL = 2 * time.Hour

// Feed merges incidents configured at startup with incidents reported at
// runtime. Reported incidents expire; configured ones do not unless they
// carry an ExpiresAt of their own.
type Feed struct {
	mu       sync.Mutex
	static   []domain.Incident
	reported []domain.Incident
	ttl      time.Duration
	now      func() time.Time
}

func NewFeed(static []domain.Incident, ttl time.Duration) *Feed {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Feed{static: slices.Clone(static), ttl: ttl, now: time.Now}
}

func (f *Feed) WithClock(now func() time.Time) *Feed {
	f.now = now
	return f
}

// Report validates and stores an incident, filling in id and timestamps.
func (f *Feed) Report(ctx context.Context, inc domain.Incident) (domain.Incident, error) {
	if inc.Location.IsZero() || !inc.Location.IsValid() {
		return domain.Incident{}, domain.Invalid("location", "coordinates missing or out of range")
	}
	if inc.RadiusMeters <= 0 {
		return domain.Incident{}, domain.Invalid("radius_meters", "must be positive")
	}
	if inc.DelayMinutes < 0 {
		return domain.Incident{}, domain.Invalid("delay_minutes", "must be non-negative")
	}
	if _, err := domain.ParseSeverity(string(inc.Severity)); err != nil {
		return domain.Incident{}, err
	}

	now := f.now()
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	inc.ReportedAt = now
	if inc.ExpiresAt.IsZero() {
		inc.ExpiresAt = now.Add(f.ttl)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, inc)
	return inc, nil
}

// ActiveIncidents returns unexpired incidents and drops expired reports.
func (f *Feed) ActiveIncidents(ctx context.Context) ([]domain.Incident, error) {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.reported = slices.DeleteFunc(f.reported, func(i domain.Incident) bool { return !i.Active(now) })

	out := make([]domain.Incident, 0, len(f.static)+len(f.reported))
	for _, i := range f.static {
		if i.Active(now) {
			out = append(out, i)
		}
	}
	return append(out, f.reported...), nil
}
