package services

import (
	"context"
	"delivery-dispatch-service/internal/adapters/audit"
	"delivery-dispatch-service/internal/adapters/geocoding"
	"delivery-dispatch-service/internal/adapters/kvstore"
	"delivery-dispatch-service/internal/adapters/repositories"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ledger"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// 15:00 sits outside every traffic peak, so leg costs equal plain distance.
var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

var depot = domain.GeoPoint{Lat: 40.0, Lng: -74.0}

type recordingNotifier struct {
	mu            sync.Mutex
	verifications []domain.VerificationRequest
	alerts        []domain.ComplianceAlert
}

func (n *recordingNotifier) SendVerification(ctx context.Context, req domain.VerificationRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, req)
	return nil
}

func (n *recordingNotifier) NotifyAlert(ctx context.Context, alert domain.ComplianceAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.DeliveryEvent
}

func (p *recordingPublisher) Publish(e domain.DeliveryEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	now        time.Time
	repo       *repositories.MemoryOrderRepository
	geocoder   *geocoding.MockGeocoder
	optimizer  *RouteOptimizer
	deliveries *DeliveryService
	cod        *CODService
	ledger     *ledger.Ledger
	audit      *audit.MemoryLog
	notifier   *recordingNotifier
	events     *recordingPublisher
}

func newFixture(t *testing.T, pins map[string]domain.GeoPoint) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		now:      testNow,
		repo:     repositories.NewMemoryOrderRepository(),
		audit:    audit.NewMemoryLog(),
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
	}
	clock := func() time.Time { return f.now }

	f.geocoder = geocoding.NewMockGeocoder(depot, pins)
	f.geocoder.Strict = true
	f.optimizer = NewRouteOptimizer(f.geocoder, nil, nil, OptimizerOptions{}).WithClock(clock)
	f.deliveries = NewDeliveryService(f.repo, f.optimizer, f.events, f.audit).WithClock(clock)

	l, err := ledger.Open(ctx, ledger.Options{Sealer: ledger.NewProofOfWork(0), Now: clock})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	f.ledger = l

	cod, err := NewCODService(ctx, f.deliveries, f.repo, l, kvstore.NewMemoryStore(), f.notifier)
	if err != nil {
		t.Fatalf("new cod service: %v", err)
	}
	f.cod = cod
	return f
}

// addOrder stores an order ready for pickup and returns its id.
func (f *fixture) addOrder(t *testing.T, o domain.DeliveryOrder) int64 {
	t.Helper()
	if o.Priority == "" {
		o.Priority = domain.PriorityNormal
	}
	if o.DeliveryStatus == "" {
		o.DeliveryStatus = domain.StatusReadyForPickup
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = f.now.Add(-10 * time.Minute)
	}
	id, err := f.repo.Create(context.Background(), &o)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return id
}

func (f *fixture) get(t *testing.T, id int64) *domain.DeliveryOrder {
	t.Helper()
	o, err := f.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get order %d: %v", id, err)
	}
	return o
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }
