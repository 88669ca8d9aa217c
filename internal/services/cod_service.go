package services

import (
	"context"
	"crypto/rand"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ledger"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// Discrepancies at or above this amount are deducted from the driver's wallet.
	autoDeductThreshold = decimal.NewFromInt(50)
	highSeverityAmount  = decimal.NewFromInt(100)
)

const verificationTTL = 24 * time.Hour

// AssignmentData carries dispatcher context for an assignment.
type AssignmentData struct {
	AssignedBy string           `json:"assigned_by"`
	Notes      string           `json:"notes"`
	Location   *domain.GeoPoint `json:"location,omitempty"`
}

// CODCollection is what the driver reports handing over at the door.
type CODCollection struct {
	CollectedAmount decimal.Decimal `json:"collected_amount"`
}

// CODService settles cash-on-delivery: driver assignment under the wallet
// ceiling, collection at delivery, discrepancy handling and compliance checks.
//
// Lock order is driver, then order. Two assignments to the same driver
// serialise; different drivers proceed in parallel.
type CODService struct {
	deliveries *DeliveryService
	repo       ports.OrderRepository
	ledger     *ledger.Ledger
	wallets    *walletBook
	notifier   ports.Notifier
	drivers    *keyedMutex
	now        func() time.Time

	alertsMu sync.Mutex
	alerts   []domain.ComplianceAlert
}

// NewCODService loads persisted wallet balances from store and installs its
// settlement on deliveries, so every delivered transition releases the
// driver's wallet. notifier may be nil.
func NewCODService(
	ctx context.Context,
	deliveries *DeliveryService,
	repo ports.OrderRepository,
	l *ledger.Ledger,
	store ports.KeyValueStore,
	notifier ports.Notifier,
) (*CODService, error) {
	wallets, err := loadWallets(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("new cod service: %w", err)
	}
	s := &CODService{
		deliveries: deliveries,
		repo:       repo,
		ledger:     l,
		wallets:    wallets,
		notifier:   notifier,
		drivers:    newKeyedMutex(),
		now:        deliveries.now,
	}
	deliveries.settle = func(ctx context.Context, orderID int64, location *domain.GeoPoint, notes string) (*domain.DeliveryOrder, error) {
		return s.UpdateDeliveryStatus(ctx, orderID, string(domain.StatusDelivered), location, notes, nil)
	}
	return s, nil
}

// AssignDriver attaches driverID to an order and books the order's COD
// amount against the driver's wallet. It fails with a *domain.ValidationError,
// changing nothing, when the wallet would exceed WalletCeiling.
func (s *CODService) AssignDriver(
	ctx context.Context,
	orderID int64,
	driverID string,
	data AssignmentData,
) (_ *domain.DeliveryOrder, err error) {
	defer obs.Time(ctx, "cod.AssignDriver")(&err)

	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, domain.Invalid("driver_id", "must be non-empty")
	}

	unlock := s.drivers.Lock(driverID)
	defer unlock()

	var due decimal.Decimal
	now := s.now()
	notes := data.Notes
	if notes == "" {
		notes = "assigned to driver " + driverID
	}

	order, err := s.deliveries.transition(ctx, orderID, domain.StatusAssigned, data.Location, notes, func(o *domain.DeliveryOrder) error {
		if o.AssignedDriver != "" {
			return domain.Invalid("driver_id", "order %d is already assigned to %s", o.ID, o.AssignedDriver)
		}
		due = o.CODDueAmount
		if due.IsZero() {
			due = o.CODAmount
		}
		if due.IsNegative() {
			return domain.Invalid("cod_due_amount", "must be non-negative, got %s", due)
		}

		balance := s.wallets.Balance(driverID)
		if balance.Add(due).GreaterThan(WalletCeiling) {
			obs.WalletRejectionsTotal.Inc()
			return domain.Invalid("cod_due_amount",
				"driver %s holds %s; adding %s exceeds the %s ceiling", driverID, balance, due, WalletCeiling)
		}

		o.AssignedDriver = driverID
		o.CODDueAmount = due
		o.AssignmentHistory = append(o.AssignmentHistory, domain.AssignmentRecord{
			DriverID:   driverID,
			AssignedBy: data.AssignedBy,
			AssignedAt: now,
			CODDue:     due,
			Notes:      data.Notes,
			Location:   data.Location,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.wallets.Adjust(ctx, driverID, due); err != nil {
		log.Printf("req_id=%s op=cod.AssignDriver driver=%s err=%v", obs.RequestID(ctx), driverID, err)
	}
	s.appendLedger(ctx, domain.LedgerTransaction{
		Type:      domain.TxAssignment,
		OrderID:   orderID,
		DriverID:  driverID,
		Amount:    due,
		Timestamp: now,
		Metadata:  map[string]string{"assigned_by": data.AssignedBy},
	})
	s.deliveries.record(ctx, domain.AuditEntry{
		Action:    "driver_assigned",
		OrderID:   orderID,
		DriverID:  driverID,
		Details:   map[string]string{"cod_due": due.String(), "assigned_by": data.AssignedBy},
		Timestamp: now,
	})
	s.deliveries.publish(domain.DeliveryEvent{
		Type:     "driver_assigned",
		OrderID:  orderID,
		DriverID: driverID,
		Status:   domain.StatusAssigned,
		At:       now,
	})

	return order, nil
}

// UpdateDeliveryStatus is the COD-aware status update.
//
// On delivered the assigned driver's wallet drops by the due amount whatever
// was collected. When a collection is reported the discrepancy is recorded,
// a collection transaction is booked, and any non-zero discrepancy raises an
// alert and a customer verification request. Discrepancies of 50 or more are
// also deducted from the driver's wallet.
func (s *CODService) UpdateDeliveryStatus(
	ctx context.Context,
	orderID int64,
	status string,
	location *domain.GeoPoint,
	notes string,
	collection *CODCollection,
) (_ *domain.DeliveryOrder, err error) {
	defer obs.Time(ctx, "cod.UpdateDeliveryStatus")(&err)

	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if st == domain.StatusAssigned {
		return nil, domain.Invalid("status", "%q is set by driver assignment", st)
	}
	if collection != nil {
		if st != domain.StatusDelivered {
			return nil, domain.Invalid("collected_amount", "only accepted with status %q", domain.StatusDelivered)
		}
		if collection.CollectedAmount.IsNegative() {
			return nil, domain.Invalid("collected_amount", "must be non-negative, got %s", collection.CollectedAmount)
		}
	}
	if st != domain.StatusDelivered {
		return s.deliveries.transition(ctx, orderID, st, location, notes, nil)
	}

	peek, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	driverID := peek.AssignedDriver
	if driverID != "" {
		unlock := s.drivers.Lock(driverID)
		defer unlock()
	}

	now := s.now()
	var (
		due         decimal.Decimal
		discrepancy decimal.Decimal
		deducted    bool
	)

	order, err := s.deliveries.transition(ctx, orderID, st, location, notes, func(o *domain.DeliveryOrder) error {
		if o.AssignedDriver != driverID {
			return domain.Invalid("driver_id", "order %d was reassigned during settlement", o.ID)
		}
		due = o.CODDueAmount
		if collection == nil {
			return nil
		}

		o.CODCollectedAmount = collection.CollectedAmount
		discrepancy = collection.CollectedAmount.Sub(due).Abs()
		o.CODDiscrepancy = discrepancy

		if driverID != "" && discrepancy.GreaterThanOrEqual(autoDeductThreshold) {
			deducted = true
			o.Deductions = append(o.Deductions, domain.WalletDeduction{
				DriverID: driverID,
				Amount:   discrepancy,
				Reason:   domain.AlertCODDiscrepancy,
				At:       now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if driverID != "" {
		if err := s.wallets.Adjust(ctx, driverID, due.Neg()); err != nil {
			log.Printf("req_id=%s op=cod.settle driver=%s err=%v", obs.RequestID(ctx), driverID, err)
		}
		if deducted {
			if err := s.wallets.Adjust(ctx, driverID, discrepancy.Neg()); err != nil {
				log.Printf("req_id=%s op=cod.deduct driver=%s err=%v", obs.RequestID(ctx), driverID, err)
			}
		}
	}

	if collection != nil {
		s.appendLedger(ctx, domain.LedgerTransaction{
			Type:      domain.TxCollection,
			OrderID:   orderID,
			DriverID:  driverID,
			Amount:    collection.CollectedAmount,
			Timestamp: now,
			Metadata: map[string]string{
				"due":         due.String(),
				"discrepancy": discrepancy.String(),
			},
		})
	}

	if discrepancy.IsPositive() {
		s.handleDiscrepancy(ctx, order, discrepancy, deducted)
	}
	return order, nil
}

func discrepancySeverity(d decimal.Decimal) domain.Severity {
	switch {
	case d.GreaterThanOrEqual(highSeverityAmount):
		return domain.SeverityHigh
	case d.GreaterThanOrEqual(autoDeductThreshold):
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}

func (s *CODService) handleDiscrepancy(ctx context.Context, order *domain.DeliveryOrder, discrepancy decimal.Decimal, deducted bool) {
	now := s.now()
	sev := discrepancySeverity(discrepancy)

	actions := []string{"customer_verification_requested"}
	if deducted {
		actions = append(actions, "wallet_deduction")
	}
	escalation := 0
	switch sev {
	case domain.SeverityMedium:
		escalation = 1
	case domain.SeverityHigh:
		escalation = 2
		actions = append(actions, "escalated_to_supervisor")
	}

	s.raise(ctx, domain.ComplianceAlert{
		ID:              uuid.NewString(),
		Type:            domain.AlertCODDiscrepancy,
		Severity:        sev,
		OrderID:         order.ID,
		DriverID:        order.AssignedDriver,
		Discrepancy:     discrepancy,
		TotalAmount:     order.CODCollectedAmount,
		Timestamp:       now,
		EscalationLevel: escalation,
		AutoActions:     actions,
	})

	code, err := verificationCode()
	if err != nil {
		log.Printf("req_id=%s op=cod.verification order_id=%d err=%v", obs.RequestID(ctx), order.ID, err)
		return
	}
	req := domain.VerificationRequest{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Customer:  order.Customer,
		Code:      code,
		Collected: order.CODCollectedAmount,
		Due:       order.CODDueAmount,
		ExpiresAt: now.Add(verificationTTL),
		CreatedAt: now,
	}
	if s.notifier != nil {
		if err := s.notifier.SendVerification(ctx, req); err != nil {
			log.Printf("req_id=%s op=cod.verification order_id=%d err=%v", obs.RequestID(ctx), order.ID, err)
		}
	}
}

// verificationCode returns a uniformly random 6-digit code.
func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *CODService) appendLedger(ctx context.Context, tx domain.LedgerTransaction) {
	if err := s.ledger.Append(ctx, tx); err != nil {
		log.Printf("req_id=%s op=cod.ledger type=%s order_id=%d err=%v", obs.RequestID(ctx), tx.Type, tx.OrderID, err)
	}
}

// WalletBalance returns the COD cash driverID currently holds.
func (s *CODService) WalletBalance(driverID string) decimal.Decimal {
	return s.wallets.Balance(driverID)
}

func (s *CODService) Wallets() map[string]decimal.Decimal {
	return s.wallets.Snapshot()
}

func (s *CODService) GetCODLedger() domain.LedgerView {
	return s.ledger.View()
}

func (s *CODService) VerifyLedger() error {
	return s.ledger.Verify()
}
