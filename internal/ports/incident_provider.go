package ports

import (
	"context"

	"delivery-dispatch-service/internal/domain"
)

// Source of currently active traffic incidents.
type IncidentProvider interface {
	ActiveIncidents(ctx context.Context) ([]domain.Incident, error)
}
