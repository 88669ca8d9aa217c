package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const unassignedCODTimeout = time.Hour

// walletAlertRatio is the share of WalletCeiling that triggers a proximity alert.
var walletAlertRatio = decimal.NewFromFloat(0.8)

// CheckUnassignedCODOrders raises one unassigned_cod_timeout alert bundling
// every open COD order that has waited over an hour without a driver.
// It returns nil when nothing is overdue.
func (s *CODService) CheckUnassignedCODOrders(ctx context.Context) (_ *domain.ComplianceAlert, err error) {
	defer obs.Time(ctx, "cod.CheckUnassignedCODOrders")(&err)

	orders, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("check unassigned cod orders: %w", err)
	}

	now := s.now()
	var ids []int64
	total := decimal.Zero
	for _, o := range orders {
		if o.AssignedDriver != "" || !o.CODAmount.IsPositive() || o.DeliveryStatus.Terminal() {
			continue
		}
		if now.Sub(o.CreatedAt) <= unassignedCODTimeout {
			continue
		}
		ids = append(ids, o.ID)
		total = total.Add(o.CODAmount)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	alert := domain.ComplianceAlert{
		ID:              uuid.NewString(),
		Type:            domain.AlertUnassignedCODTimeout,
		Severity:        domain.SeverityMedium,
		OrderIDs:        ids,
		TotalAmount:     total,
		Timestamp:       now,
		EscalationLevel: 1,
		AutoActions:     []string{"notify_dispatch"},
	}
	s.raise(ctx, alert)
	return &alert, nil
}

// CheckAgentWalletLimits raises a wallet_limit_proximity alert for every
// driver holding at least 80% of WalletCeiling.
func (s *CODService) CheckAgentWalletLimits(ctx context.Context) []domain.ComplianceAlert {
	limit := WalletCeiling.Mul(walletAlertRatio)
	balances := s.wallets.Snapshot()

	drivers := make([]string, 0, len(balances))
	for id := range balances {
		drivers = append(drivers, id)
	}
	slices.Sort(drivers)

	now := s.now()
	var alerts []domain.ComplianceAlert
	for _, id := range drivers {
		bal := balances[id]
		if bal.LessThan(limit) {
			continue
		}
		sev := domain.SeverityMedium
		if bal.GreaterThanOrEqual(WalletCeiling) {
			sev = domain.SeverityHigh
		}
		alert := domain.ComplianceAlert{
			ID:          uuid.NewString(),
			Type:        domain.AlertWalletLimitProximity,
			Severity:    sev,
			DriverID:    id,
			TotalAmount: bal,
			Timestamp:   now,
			AutoActions: []string{"notify_driver", "request_cash_drop"},
		}
		s.raise(ctx, alert)
		alerts = append(alerts, alert)
	}
	return alerts
}

// Alerts lists every alert raised since start, oldest first.
func (s *CODService) Alerts() []domain.ComplianceAlert {
	s.alertsMu.Lock()
	defer s.alertsMu.Unlock()
	return slices.Clone(s.alerts)
}

func (s *CODService) raise(ctx context.Context, alert domain.ComplianceAlert) {
	s.alertsMu.Lock()
	s.alerts = append(s.alerts, alert)
	s.alertsMu.Unlock()

	obs.ComplianceAlertsTotal.WithLabelValues(alert.Type, string(alert.Severity)).Inc()
	log.Printf("req_id=%s op=cod.alert type=%s severity=%s order_id=%d driver=%s",
		obs.RequestID(ctx), alert.Type, alert.Severity, alert.OrderID, alert.DriverID)

	if s.notifier != nil {
		if err := s.notifier.NotifyAlert(ctx, alert); err != nil {
			log.Printf("req_id=%s op=cod.alert.notify id=%s err=%v", obs.RequestID(ctx), alert.ID, err)
		}
	}
	s.deliveries.record(ctx, domain.AuditEntry{
		Action:    "compliance_alert",
		OrderID:   alert.OrderID,
		DriverID:  alert.DriverID,
		Details:   map[string]string{"type": alert.Type, "severity": string(alert.Severity), "id": alert.ID},
		Timestamp: alert.Timestamp,
	})
	s.deliveries.publish(domain.DeliveryEvent{
		Type:     "compliance_alert",
		OrderID:  alert.OrderID,
		DriverID: alert.DriverID,
		Payload:  alert,
		At:       alert.Timestamp,
	})
}

// RunComplianceMonitor runs the periodic checks and retries pending ledger
// sealing every interval until ctx is done.
func (s *CODService) RunComplianceMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.CheckUnassignedCODOrders(ctx); err != nil {
				log.Printf("op=cod.monitor check=unassigned err=%v", err)
			}
			s.CheckAgentWalletLimits(ctx)
			if err := s.ledger.Mine(ctx); err != nil {
				log.Printf("op=cod.monitor check=mine err=%v", err)
			}
		}
	}
}
