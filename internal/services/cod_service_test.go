package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestAssignDriverWalletCeiling(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", CODAmount: amount("10000")})
	second := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "b", CODAmount: amount("6000")})

	o, err := f.cod.AssignDriver(ctx, first, "D1", AssignmentData{AssignedBy: "dispatch"})
	if err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	if o.DeliveryStatus != domain.StatusAssigned || o.AssignedDriver != "D1" || !o.CODDueAmount.Equal(amount("10000")) {
		t.Fatalf("assigned order = %+v", o)
	}
	if len(o.AssignmentHistory) != 1 {
		t.Fatalf("assignment history = %d, want 1", len(o.AssignmentHistory))
	}

	var ve *domain.ValidationError
	if _, err := f.cod.AssignDriver(ctx, second, "D1", AssignmentData{}); !errors.As(err, &ve) {
		t.Fatalf("second assignment error = %v, want ValidationError", err)
	}
	if bal := f.cod.WalletBalance("D1"); !bal.Equal(amount("10000")) {
		t.Fatalf("wallet = %s, want 10000", bal)
	}
	if got := f.get(t, second); got.AssignedDriver != "" || got.DeliveryStatus != domain.StatusReadyForPickup {
		t.Fatalf("rejected order changed: %+v", got)
	}

	// Another driver has room.
	if _, err := f.cod.AssignDriver(ctx, second, "D2", AssignmentData{}); err != nil {
		t.Fatalf("assignment to D2: %v", err)
	}
}

func TestAssignDriverRejectsReassignment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", CODAmount: amount("40")})

	if _, err := f.cod.AssignDriver(ctx, id, "D1", AssignmentData{}); err != nil {
		t.Fatal(err)
	}
	var ve *domain.ValidationError
	if _, err := f.cod.AssignDriver(ctx, id, "D2", AssignmentData{}); !errors.As(err, &ve) {
		t.Fatalf("reassignment error = %v, want ValidationError", err)
	}
	if _, err := f.cod.AssignDriver(ctx, id, "  ", AssignmentData{}); !errors.As(err, &ve) {
		t.Fatalf("blank driver error = %v, want ValidationError", err)
	}
	if bal := f.cod.WalletBalance("D2"); !bal.IsZero() {
		t.Fatalf("D2 wallet = %s, want 0", bal)
	}
}

func TestAssignDriverBooksDueAmount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	// Part prepaid: only 60 of the 100 is still owed at the door.
	id := f.addOrder(t, domain.DeliveryOrder{
		DeliveryAddress: "a",
		CODAmount:       amount("100"),
		CODDueAmount:    amount("60"),
	})

	o, err := f.cod.AssignDriver(ctx, id, "D1", AssignmentData{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !o.CODDueAmount.Equal(amount("60")) {
		t.Fatalf("cod due = %s, want 60", o.CODDueAmount)
	}
	if bal := f.cod.WalletBalance("D1"); !bal.Equal(amount("60")) {
		t.Fatalf("wallet = %s, want 60", bal)
	}

	// The ceiling check counts the due amount, not the order total.
	big := f.addOrder(t, domain.DeliveryOrder{
		DeliveryAddress: "b",
		CODAmount:       amount("20000"),
		CODDueAmount:    amount("14940"),
	})
	if _, err := f.cod.AssignDriver(ctx, big, "D1", AssignmentData{}); err != nil {
		t.Fatalf("assign within ceiling: %v", err)
	}
	if bal := f.cod.WalletBalance("D1"); !bal.Equal(amount("15000")) {
		t.Fatalf("wallet = %s, want 15000", bal)
	}
}

func deliverWith(t *testing.T, f *fixture, due, collected string) *domain.DeliveryOrder {
	t.Helper()
	ctx := context.Background()
	id := f.addOrder(t, domain.DeliveryOrder{
		DeliveryAddress: "a",
		CODAmount:       amount(due),
		Customer:        domain.Customer{Name: "Grace Hopper", Phone: "555-0100"},
	})
	if _, err := f.cod.AssignDriver(ctx, id, "D1", AssignmentData{}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	o, err := f.cod.UpdateDeliveryStatus(ctx, id, "delivered", nil, "", &CODCollection{CollectedAmount: amount(collected)})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	return o
}

func TestCollectionWithSmallDiscrepancy(t *testing.T) {
	f := newFixture(t, nil)

	o := deliverWith(t, f, "100", "130")
	if !o.CODDiscrepancy.Equal(amount("30")) || !o.CODCollectedAmount.Equal(amount("130")) {
		t.Fatalf("order amounts = collected %s discrepancy %s", o.CODCollectedAmount, o.CODDiscrepancy)
	}
	if len(o.Deductions) != 0 {
		t.Fatalf("deductions = %+v, want none below 50", o.Deductions)
	}
	if bal := f.cod.WalletBalance("D1"); !bal.IsZero() {
		t.Fatalf("wallet = %s, want 0", bal)
	}

	alerts := f.cod.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Type != domain.AlertCODDiscrepancy || a.Severity != domain.SeverityLow || a.EscalationLevel != 0 {
		t.Fatalf("alert = %+v, want low cod_discrepancy", a)
	}
	if !slices.Equal(a.AutoActions, []string{"customer_verification_requested"}) {
		t.Fatalf("auto actions = %v", a.AutoActions)
	}

	if len(f.notifier.verifications) != 1 {
		t.Fatalf("verifications = %d, want 1", len(f.notifier.verifications))
	}
	v := f.notifier.verifications[0]
	if len(v.Code) != 6 || !v.ExpiresAt.Equal(testNow.Add(24*time.Hour)) {
		t.Fatalf("verification = %+v", v)
	}

	view := f.cod.GetCODLedger()
	if len(view.Blocks) != 2 || len(view.PendingTransactions) != 0 {
		t.Fatalf("ledger blocks=%d pending=%d, want 2 and 0", len(view.Blocks), len(view.PendingTransactions))
	}
	txs := view.Blocks[1].Transactions
	if txs[0].Type != domain.TxAssignment || txs[1].Type != domain.TxCollection || txs[1].Metadata["discrepancy"] != "30" {
		t.Fatalf("sealed transactions = %+v", txs)
	}
	if err := f.cod.VerifyLedger(); err != nil {
		t.Fatalf("VerifyLedger() error = %v", err)
	}
}

func TestCollectionWithLargeDiscrepancyDeducts(t *testing.T) {
	f := newFixture(t, nil)

	o := deliverWith(t, f, "100", "250")
	if !o.CODDiscrepancy.Equal(amount("150")) {
		t.Fatalf("discrepancy = %s, want 150", o.CODDiscrepancy)
	}
	if len(o.Deductions) != 1 || !o.Deductions[0].Amount.Equal(amount("150")) {
		t.Fatalf("deductions = %+v", o.Deductions)
	}
	if bal := f.cod.WalletBalance("D1"); !bal.Equal(amount("-150")) {
		t.Fatalf("wallet = %s, want -150", bal)
	}

	a := f.cod.Alerts()[0]
	if a.Severity != domain.SeverityHigh || a.EscalationLevel != 2 {
		t.Fatalf("alert = %+v, want high escalation 2", a)
	}
	want := []string{"customer_verification_requested", "wallet_deduction", "escalated_to_supervisor"}
	if !slices.Equal(a.AutoActions, want) {
		t.Fatalf("auto actions = %v, want %v", a.AutoActions, want)
	}
	if len(f.notifier.alerts) != 1 {
		t.Fatalf("notified alerts = %d, want 1", len(f.notifier.alerts))
	}
}

func TestDeliveryWithoutCollectionSettlesDue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", CODAmount: amount("75.50")})
	if _, err := f.cod.AssignDriver(ctx, id, "D1", AssignmentData{}); err != nil {
		t.Fatal(err)
	}
	if bal := f.cod.WalletBalance("D1"); !bal.Equal(amount("75.5")) {
		t.Fatalf("wallet after assign = %s", bal)
	}

	if _, err := f.cod.UpdateDeliveryStatus(ctx, id, "in_transit", nil, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.cod.UpdateDeliveryStatus(ctx, id, "delivered", nil, "", nil); err != nil {
		t.Fatal(err)
	}
	if bal := f.cod.WalletBalance("D1"); !bal.IsZero() {
		t.Fatalf("wallet after delivery = %s, want 0", bal)
	}
	if n := len(f.cod.Alerts()); n != 0 {
		t.Fatalf("alerts = %d, want 0", n)
	}
}

func TestUpdateDeliveryStatusCollectionRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", CODAmount: amount("20")})

	var ve *domain.ValidationError
	c := &CODCollection{CollectedAmount: amount("20")}
	if _, err := f.cod.UpdateDeliveryStatus(ctx, id, "in_transit", nil, "", c); !errors.As(err, &ve) {
		t.Fatalf("collection with in_transit error = %v, want ValidationError", err)
	}
	neg := &CODCollection{CollectedAmount: amount("-1")}
	if _, err := f.cod.UpdateDeliveryStatus(ctx, id, "delivered", nil, "", neg); !errors.As(err, &ve) {
		t.Fatalf("negative collection error = %v, want ValidationError", err)
	}
	if _, err := f.cod.UpdateDeliveryStatus(ctx, id, "assigned", nil, "", nil); !errors.As(err, &ve) {
		t.Fatalf("assigned status error = %v, want ValidationError", err)
	}
}

func TestCheckUnassignedCODOrders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	alert, err := f.cod.CheckUnassignedCODOrders(ctx)
	if err != nil || alert != nil {
		t.Fatalf("no orders: alert = %+v, err = %v", alert, err)
	}

	stale := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", CODAmount: amount("30"), CreatedAt: testNow.Add(-2 * time.Hour)})
	f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "b", CODAmount: amount("30")})
	f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "c", CreatedAt: testNow.Add(-3 * time.Hour)})

	alert, err = f.cod.CheckUnassignedCODOrders(ctx)
	if err != nil {
		t.Fatalf("CheckUnassignedCODOrders() error = %v", err)
	}
	if alert == nil || !slices.Equal(alert.OrderIDs, []int64{stale}) {
		t.Fatalf("alert = %+v, want only order %d", alert, stale)
	}
	if alert.Type != domain.AlertUnassignedCODTimeout || !alert.TotalAmount.Equal(amount("30")) {
		t.Fatalf("alert = %+v", alert)
	}
}

func TestCheckAgentWalletLimits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	big := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", CODAmount: amount("12500")})
	small := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "b", CODAmount: amount("500")})

	if _, err := f.cod.AssignDriver(ctx, big, "D1", AssignmentData{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.cod.AssignDriver(ctx, small, "D2", AssignmentData{}); err != nil {
		t.Fatal(err)
	}

	alerts := f.cod.CheckAgentWalletLimits(ctx)
	if len(alerts) != 1 || alerts[0].DriverID != "D1" || alerts[0].Severity != domain.SeverityMedium {
		t.Fatalf("alerts = %+v, want one medium alert for D1", alerts)
	}
	if !slices.Contains(f.events.types(), "compliance_alert") {
		t.Fatalf("events = %v, want a compliance_alert event", f.events.types())
	}
}

func TestWalletsPersistAcrossRestart(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "a", CODAmount: amount("300")})
	if _, err := f.cod.AssignDriver(ctx, id, "D1", AssignmentData{}); err != nil {
		t.Fatal(err)
	}

	store := f.cod.wallets.store
	reloaded, err := NewCODService(ctx, f.deliveries, f.repo, f.ledger, store, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if bal := reloaded.WalletBalance("D1"); !bal.Equal(amount("300")) {
		t.Fatalf("reloaded wallet = %s, want 300", bal)
	}
}
