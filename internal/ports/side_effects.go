package ports

import (
	"context"

	"delivery-dispatch-service/internal/domain"
)

// Notifier delivers customer verification requests and compliance alerts to
// whatever is listening outside the service (webhook, log).
type Notifier interface {
	SendVerification(ctx context.Context, req domain.VerificationRequest) error
	NotifyAlert(ctx context.Context, alert domain.ComplianceAlert) error
}

// EventPublisher fans delivery events out to realtime subscribers.
// Publish must not block on slow subscribers.
type EventPublisher interface {
	Publish(event domain.DeliveryEvent)
}

// AuditLog records status changes and ledger activity.
type AuditLog interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
}
