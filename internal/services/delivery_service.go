package services

import (
	"cmp"
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DeliveryService owns in-flight delivery state: status transitions, the
// active-deliveries working set and the last known driver positions.
// Orders themselves live in the repository.
type DeliveryService struct {
	repo      ports.OrderRepository
	optimizer *RouteOptimizer
	events    ports.EventPublisher
	audit     ports.AuditLog
	locks     *keyedMutex
	now       func() time.Time

	// settle books a delivered order against its driver's wallet. Installed
	// by NewCODService; when nil, delivered is a plain transition.
	settle func(ctx context.Context, orderID int64, location *domain.GeoPoint, notes string) (*domain.DeliveryOrder, error)

	mu        sync.RWMutex
	active    map[int64]domain.ActiveDelivery
	locations map[string]domain.DriverLocation
}

// NewDeliveryService wires the service. events and audit may be nil.
func NewDeliveryService(
	repo ports.OrderRepository,
	optimizer *RouteOptimizer,
	events ports.EventPublisher,
	audit ports.AuditLog,
) *DeliveryService {
	return &DeliveryService{
		repo:      repo,
		optimizer: optimizer,
		events:    events,
		audit:     audit,
		locks:     newKeyedMutex(),
		now:       time.Now,
		active:    make(map[int64]domain.ActiveDelivery),
		locations: make(map[string]domain.DriverLocation),
	}
}

func (s *DeliveryService) WithClock(now func() time.Time) *DeliveryService {
	s.now = now
	return s
}

// GetDeliveryQueue lists orders waiting for or in delivery, urgent first and
// then by window start (creation time when no window is set).
func (s *DeliveryService) GetDeliveryQueue(ctx context.Context) (_ []*domain.DeliveryOrder, err error) {
	defer obs.Time(ctx, "deliveries.GetDeliveryQueue")(&err)

	orders, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("delivery queue: list orders: %w", err)
	}

	queue := make([]*domain.DeliveryOrder, 0, len(orders))
	for _, o := range orders {
		if o.DeliveryStatus.Queued() {
			queue = append(queue, o)
		}
	}

	slices.SortStableFunc(queue, func(a, b *domain.DeliveryOrder) int {
		au, bu := a.Priority == domain.PriorityUrgent, b.Priority == domain.PriorityUrgent
		if au != bu {
			if au {
				return -1
			}
			return 1
		}
		if c := a.WindowStart().Compare(b.WindowStart()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return queue, nil
}

// UpdateOrderStatus moves an order to status and records a timeline entry.
// Terminal orders cannot change status. The assigned status is reserved for
// driver assignment and is rejected here. With a COD service wired, delivered
// goes through its settlement so the driver's wallet is always released.
func (s *DeliveryService) UpdateOrderStatus(
	ctx context.Context,
	orderID int64,
	status string,
	location *domain.GeoPoint,
	notes string,
) (_ *domain.DeliveryOrder, err error) {
	defer obs.Time(ctx, "deliveries.UpdateOrderStatus")(&err)

	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if st == domain.StatusAssigned {
		return nil, domain.Invalid("status", "%q is set by driver assignment", st)
	}
	if st == domain.StatusDelivered && s.settle != nil {
		return s.settle(ctx, orderID, location, notes)
	}
	return s.transition(ctx, orderID, st, location, notes, nil)
}

// ReportDeliveryIssue fails the delivery with a "{type}: {description}" note.
func (s *DeliveryService) ReportDeliveryIssue(
	ctx context.Context,
	orderID int64,
	issueType string,
	description string,
	location *domain.GeoPoint,
) (_ *domain.DeliveryOrder, err error) {
	defer obs.Time(ctx, "deliveries.ReportDeliveryIssue")(&err)

	issueType = strings.TrimSpace(issueType)
	if issueType == "" {
		return nil, domain.Invalid("issue_type", "must be non-empty")
	}

	note := fmt.Sprintf("%s: %s", issueType, description)
	return s.transition(ctx, orderID, domain.StatusFailed, location, note, func(o *domain.DeliveryOrder) error {
		o.Issues = append(o.Issues, domain.DeliveryIssue{
			Type:        issueType,
			Description: description,
			Location:    location,
			ReportedAt:  s.now(),
		})
		return nil
	})
}

// transition is the single write path for status changes. mutate, when set,
// runs on a copy of the order after the timeline entry is appended; an error
// from mutate aborts the change without persisting anything.
func (s *DeliveryService) transition(
	ctx context.Context,
	orderID int64,
	status domain.DeliveryStatus,
	location *domain.GeoPoint,
	notes string,
	mutate func(o *domain.DeliveryOrder) error,
) (*domain.DeliveryOrder, error) {
	if location != nil && !location.IsValid() {
		return nil, domain.Invalid("location", "coordinates out of range")
	}

	unlock := s.locks.Lock(orderKey(orderID))
	defer unlock()

	current, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.DeliveryStatus.Terminal() {
		return nil, domain.Invalid("status", "order %d is already %s", orderID, current.DeliveryStatus)
	}

	now := s.now()
	next := current.Clone()
	next.RecordStatus(status, now, location, notes)
	if location != nil {
		next.GPSVerification = &domain.GPSVerification{Location: *location, RecordedAt: now}
	}
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Upsert(ctx, next); err != nil {
		return nil, fmt.Errorf("update status: order %d: %w", orderID, err)
	}

	s.trackActive(next, location, now)

	s.record(ctx, domain.AuditEntry{
		Action:   "status_change",
		OrderID:  orderID,
		DriverID: next.AssignedDriver,
		Details: map[string]string{
			"from":  string(current.DeliveryStatus),
			"to":    string(status),
			"notes": notes,
		},
		Timestamp: now,
	})
	s.publish(domain.DeliveryEvent{
		Type:     "status_changed",
		OrderID:  orderID,
		DriverID: next.AssignedDriver,
		Status:   status,
		Location: location,
		At:       now,
	})

	return next, nil
}

func (s *DeliveryService) trackActive(o *domain.DeliveryOrder, location *domain.GeoPoint, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o.DeliveryStatus {
	case domain.StatusPickedUp, domain.StatusInTransit, domain.StatusOutForDelivery:
		entry := s.active[o.ID]
		entry.OrderID = o.ID
		entry.DriverID = o.AssignedDriver
		entry.Status = o.DeliveryStatus
		entry.UpdatedAt = now
		if location != nil {
			l := *location
			entry.LastLocation = &l
		}
		s.active[o.ID] = entry
	case domain.StatusDelivered, domain.StatusFailed:
		delete(s.active, o.ID)
	}
}

// ActiveDeliveries returns the working set ordered by order id.
func (s *DeliveryService) ActiveDeliveries() []domain.ActiveDelivery {
	s.mu.RLock()
	out := make([]domain.ActiveDelivery, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, a)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.ActiveDelivery) int { return cmp.Compare(a.OrderID, b.OrderID) })
	return out
}

// UpdateDriverLocation stores the driver's latest fix and stamps it on every
// active delivery the driver is carrying.
func (s *DeliveryService) UpdateDriverLocation(
	ctx context.Context,
	driverID string,
	location domain.GeoPoint,
	accuracyMeters float64,
) error {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return domain.Invalid("driver_id", "must be non-empty")
	}
	if location.IsZero() || !location.IsValid() {
		return domain.Invalid("location", "coordinates missing or out of range")
	}
	if accuracyMeters < 0 {
		return domain.Invalid("accuracy", "must be non-negative")
	}

	now := s.now()
	s.mu.Lock()
	s.locations[driverID] = domain.DriverLocation{
		DriverID:       driverID,
		Location:       location,
		AccuracyMeters: accuracyMeters,
		RecordedAt:     now,
	}
	for id, a := range s.active {
		if a.DriverID == driverID {
			l := location
			a.LastLocation = &l
			a.UpdatedAt = now
			s.active[id] = a
		}
	}
	s.mu.Unlock()

	s.publish(domain.DeliveryEvent{
		Type:     "driver_location",
		DriverID: driverID,
		Location: &location,
		At:       now,
	})
	return nil
}

// DriverLocation returns the last reported position. Absence is an error, not
// a zero point.
func (s *DeliveryService) DriverLocation(driverID string) (domain.DriverLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[driverID]
	if !ok {
		return domain.DriverLocation{}, &domain.LocationUnavailableError{Subject: "driver " + driverID}
	}
	return loc, nil
}

func (s *DeliveryService) record(ctx context.Context, entry domain.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		log.Printf("req_id=%s op=audit.Append action=%s order_id=%d err=%v", obs.RequestID(ctx), entry.Action, entry.OrderID, err)
	}
}

func (s *DeliveryService) publish(event domain.DeliveryEvent) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

func orderKey(id int64) string { return "order:" + strconv.FormatInt(id, 10) }
