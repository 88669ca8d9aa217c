package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestGetDeliveryQueueOrdering(t *testing.T) {
	f := newFixture(t, nil)

	older := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", CreatedAt: testNow.Add(-2 * time.Hour)})
	urgent := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "b", Priority: domain.PriorityUrgent})
	f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "c", DeliveryStatus: domain.StatusDelivered})
	windowed := f.addOrder(t, domain.DeliveryOrder{
		DeliveryAddress: "d",
		DeliveryWindow:  &domain.TimeWindow{Start: testNow.Add(-3 * time.Hour), End: testNow.Add(time.Hour)},
	})

	queue, err := f.deliveries.GetDeliveryQueue(context.Background())
	if err != nil {
		t.Fatalf("GetDeliveryQueue() error = %v", err)
	}
	var got []int64
	for _, o := range queue {
		got = append(got, o.ID)
	}
	want := []int64{urgent, windowed, older}
	if !slices.Equal(got, want) {
		t.Fatalf("queue = %v, want %v", got, want)
	}
}

func TestUpdateOrderStatusLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", AssignedDriver: "D1"})
	loc := &domain.GeoPoint{Lat: 40.01, Lng: -74.0}

	o, err := f.deliveries.UpdateOrderStatus(ctx, id, "picked_up", loc, "left depot")
	if err != nil {
		t.Fatalf("picked_up: %v", err)
	}
	if o.DeliveryStatus != domain.StatusPickedUp || len(o.DeliveryTimeline) != 1 || o.GPSVerification == nil {
		t.Fatalf("order after pickup = %+v", o)
	}
	active := f.deliveries.ActiveDeliveries()
	if len(active) != 1 || active[0].DriverID != "D1" || active[0].LastLocation == nil {
		t.Fatalf("active = %+v", active)
	}

	if _, err := f.deliveries.UpdateOrderStatus(ctx, id, "delivered", nil, ""); err != nil {
		t.Fatalf("delivered: %v", err)
	}
	if n := len(f.deliveries.ActiveDeliveries()); n != 0 {
		t.Fatalf("active after delivery = %d, want 0", n)
	}

	var ve *domain.ValidationError
	if _, err := f.deliveries.UpdateOrderStatus(ctx, id, "in_transit", nil, ""); !errors.As(err, &ve) {
		t.Fatalf("update of delivered order error = %v, want ValidationError", err)
	}
	if got := f.get(t, id); len(got.DeliveryTimeline) != 2 {
		t.Fatalf("timeline = %d entries, want 2", len(got.DeliveryTimeline))
	}

	if n := len(f.audit.Entries()); n != 2 {
		t.Fatalf("audit entries = %d, want 2", n)
	}
	if got := f.events.types(); !slices.Equal(got, []string{"status_changed", "status_changed"}) {
		t.Fatalf("events = %v", got)
	}
}

func TestUpdateOrderStatusDeliveredReleasesWallet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", CODAmount: amount("10000")})
	if _, err := f.cod.AssignDriver(ctx, id, "D1", AssignmentData{}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := f.deliveries.UpdateOrderStatus(ctx, id, "picked_up", nil, ""); err != nil {
		t.Fatalf("picked_up: %v", err)
	}
	o, err := f.deliveries.UpdateOrderStatus(ctx, id, "delivered", nil, "left at door")
	if err != nil {
		t.Fatalf("delivered: %v", err)
	}
	if o.DeliveryStatus != domain.StatusDelivered {
		t.Fatalf("status = %s, want %s", o.DeliveryStatus, domain.StatusDelivered)
	}
	if bal := f.cod.WalletBalance("D1"); !bal.IsZero() {
		t.Fatalf("wallet after delivery = %s, want 0", bal)
	}

	next := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "b", CODAmount: amount("6000")})
	if _, err := f.cod.AssignDriver(ctx, next, "D1", AssignmentData{}); err != nil {
		t.Fatalf("assignment after settlement: %v", err)
	}
}

func TestUpdateOrderStatusRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a"})

	var ve *domain.ValidationError
	for _, status := range []string{"assigned", "teleported", ""} {
		if _, err := f.deliveries.UpdateOrderStatus(ctx, id, status, nil, ""); !errors.As(err, &ve) {
			t.Errorf("status %q error = %v, want ValidationError", status, err)
		}
	}
	bad := &domain.GeoPoint{Lat: 95, Lng: 0}
	if _, err := f.deliveries.UpdateOrderStatus(ctx, id, "picked_up", bad, ""); !errors.As(err, &ve) {
		t.Errorf("bad location error = %v, want ValidationError", err)
	}

	var nf *domain.NotFoundError
	if _, err := f.deliveries.UpdateOrderStatus(ctx, 404, "picked_up", nil, ""); !errors.As(err, &nf) {
		t.Fatalf("unknown order error = %v, want NotFoundError", err)
	}

	if got := f.get(t, id); got.DeliveryStatus != domain.StatusReadyForPickup || len(got.DeliveryTimeline) != 0 {
		t.Fatalf("rejected updates changed the order: %+v", got)
	}
}

func TestReportDeliveryIssue(t *testing.T) {
	f := newFixture(t, nil)
	id := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a"})

	o, err := f.deliveries.ReportDeliveryIssue(context.Background(), id, "damaged", "box crushed", nil)
	if err != nil {
		t.Fatalf("ReportDeliveryIssue() error = %v", err)
	}
	if o.DeliveryStatus != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", o.DeliveryStatus, domain.StatusFailed)
	}
	if n := o.DeliveryTimeline[len(o.DeliveryTimeline)-1].Notes; n != "damaged: box crushed" {
		t.Fatalf("notes = %q", n)
	}
	if len(o.Issues) != 1 || o.Issues[0].Type != "damaged" {
		t.Fatalf("issues = %+v", o.Issues)
	}
}

func TestGetDeliveryMetrics(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	empty, err := f.deliveries.GetDeliveryMetrics(ctx, "nobody", "week")
	if err != nil {
		t.Fatalf("metrics for idle driver: %v", err)
	}
	if empty.Total != 0 || empty.SuccessRate != 0 {
		t.Fatalf("idle metrics = %+v, want zeros", empty)
	}

	var ve *domain.ValidationError
	if _, err := f.deliveries.GetDeliveryMetrics(ctx, "D1", "year"); !errors.As(err, &ve) {
		t.Fatalf("bad period error = %v, want ValidationError", err)
	}

	done := f.addOrder(t, domain.DeliveryOrder{
		DeliveryAddress: "a",
		AssignedDriver:  "D1",
		DeliveryWindow:  &domain.TimeWindow{Start: testNow, End: testNow.Add(time.Hour)},
	})
	f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "b", AssignedDriver: "D1"})
	failed := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "c", AssignedDriver: "D1"})
	f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "d", AssignedDriver: "D2"})

	if _, err := f.deliveries.UpdateOrderStatus(ctx, done, "picked_up", nil, ""); err != nil {
		t.Fatal(err)
	}
	f.now = f.now.Add(30 * time.Minute)
	if _, err := f.deliveries.UpdateOrderStatus(ctx, done, "delivered", nil, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.deliveries.ReportDeliveryIssue(ctx, failed, "absent", "no answer", nil); err != nil {
		t.Fatal(err)
	}

	m, err := f.deliveries.GetDeliveryMetrics(ctx, "D1", "today")
	if err != nil {
		t.Fatalf("GetDeliveryMetrics() error = %v", err)
	}
	if m.Total != 3 || m.Delivered != 1 || m.Failed != 1 || m.InProgress != 1 {
		t.Fatalf("counts = %+v", m)
	}
	if !near(m.SuccessRate, 100.0/3) {
		t.Fatalf("success rate = %v, want %v", m.SuccessRate, 100.0/3)
	}
	if !near(m.AverageDeliveryTime, 30) || m.OnTimeDeliveries != 1 {
		t.Fatalf("timing = %v min, on time %d", m.AverageDeliveryTime, m.OnTimeDeliveries)
	}
}

func TestDriverLocation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var lu *domain.LocationUnavailableError
	if _, err := f.deliveries.DriverLocation("D1"); !errors.As(err, &lu) {
		t.Fatalf("unknown driver error = %v, want LocationUnavailableError", err)
	}

	var ve *domain.ValidationError
	if err := f.deliveries.UpdateDriverLocation(ctx, "D1", domain.GeoPoint{}, 5); !errors.As(err, &ve) {
		t.Fatalf("zero point error = %v, want ValidationError", err)
	}

	id := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", AssignedDriver: "D1"})
	if _, err := f.deliveries.UpdateOrderStatus(ctx, id, "in_transit", nil, ""); err != nil {
		t.Fatal(err)
	}

	fix := domain.GeoPoint{Lat: 40.02, Lng: -74.01}
	if err := f.deliveries.UpdateDriverLocation(ctx, "D1", fix, 8); err != nil {
		t.Fatalf("UpdateDriverLocation() error = %v", err)
	}
	got, err := f.deliveries.DriverLocation("D1")
	if err != nil || got.Location != fix || got.AccuracyMeters != 8 {
		t.Fatalf("location = %+v, %v", got, err)
	}
	active := f.deliveries.ActiveDeliveries()
	if len(active) != 1 || active[0].LastLocation == nil || *active[0].LastLocation != fix {
		t.Fatalf("active = %+v, want stamped with latest fix", active)
	}
}

func TestPlanDriverRoutes(t *testing.T) {
	f := newFixture(t, map[string]domain.GeoPoint{
		"a": {Lat: 40.01, Lng: -74.0},
		"b": {Lat: 40.02, Lng: -74.0},
		"c": {Lat: 40.03, Lng: -74.0},
	})
	ctx := context.Background()
	f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", AssignedDriver: "D1"})
	f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "b", AssignedDriver: "D1"})
	f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "c", AssignedDriver: "D2"})
	f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", AssignedDriver: "D1", DeliveryStatus: domain.StatusDelivered})

	if err := f.deliveries.UpdateDriverLocation(ctx, "D1", depot, 5); err != nil {
		t.Fatal(err)
	}
	if err := f.deliveries.UpdateDriverLocation(ctx, "D2", depot, 5); err != nil {
		t.Fatal(err)
	}

	plans, err := f.deliveries.PlanDriverRoutes(ctx, []string{"D1", "D2"})
	if err != nil {
		t.Fatalf("PlanDriverRoutes() error = %v", err)
	}
	if len(plans["D1"].Stops) != 2 || len(plans["D2"].Stops) != 1 {
		t.Fatalf("stops D1=%d D2=%d, want 2 and 1", len(plans["D1"].Stops), len(plans["D2"].Stops))
	}

	var lu *domain.LocationUnavailableError
	if _, err := f.deliveries.PlanDriverRoutes(ctx, []string{"D1", "D3"}); !errors.As(err, &lu) {
		t.Fatalf("missing fix error = %v, want LocationUnavailableError", err)
	}
}
