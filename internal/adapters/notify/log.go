package notify

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"log"
)

// LogNotifier writes notifications to the process log. Used when no webhook
// is configured.
type LogNotifier struct{}

func (LogNotifier) SendVerification(ctx context.Context, req domain.VerificationRequest) error {
	log.Printf("notify=verification id=%s order_id=%d expires=%s", req.ID, req.OrderID, req.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

func (LogNotifier) NotifyAlert(ctx context.Context, alert domain.ComplianceAlert) error {
	log.Printf("notify=alert id=%s type=%s severity=%s escalation=%d", alert.ID, alert.Type, alert.Severity, alert.EscalationLevel)
	return nil
}
