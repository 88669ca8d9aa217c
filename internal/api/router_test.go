package api

import (
	"bytes"
	"context"
	"delivery-dispatch-service/internal/adapters/audit"
	"delivery-dispatch-service/internal/adapters/geocoding"
	"delivery-dispatch-service/internal/adapters/kvstore"
	"delivery-dispatch-service/internal/adapters/realtime"
	"delivery-dispatch-service/internal/adapters/repositories"
	"delivery-dispatch-service/internal/adapters/traffic"
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/auth"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ledger"
	"delivery-dispatch-service/internal/redact"
	"delivery-dispatch-service/internal/services"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

type testServer struct {
	handler http.Handler
	repo    *repositories.MemoryOrderRepository
	issuer  *auth.Issuer
}

func newTestServer(t *testing.T, depot domain.GeoPoint) *testServer {
	t.Helper()
	ctx := context.Background()

	repo := repositories.NewMemoryOrderRepository()
	geocoder := geocoding.NewMockGeocoder(domain.GeoPoint{Lat: 40, Lng: -74}, nil)
	feed := traffic.NewFeed(nil, time.Hour)
	optimizer := services.NewRouteOptimizer(geocoder, feed, nil, services.OptimizerOptions{})
	hub := realtime.NewHub()
	deliveries := services.NewDeliveryService(repo, optimizer, hub, audit.NewMemoryLog())

	l, err := ledger.Open(ctx, ledger.Options{Sealer: ledger.NewProofOfWork(0)})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	cod, err := services.NewCODService(ctx, deliveries, repo, l, kvstore.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("cod service: %v", err)
	}
	issuer, err := auth.NewIssuer("router-test")
	if err != nil {
		t.Fatal(err)
	}

	h := NewRouter(Deps{
		Repo:       repo,
		Optimizer:  optimizer,
		Deliveries: deliveries,
		COD:        cod,
		Incidents:  feed,
		Hub:        hub,
		Auth:       issuer,
		Redactor:   redact.New(language.English),
		Depot:      depot,
	})
	return &testServer{handler: h, repo: repo, issuer: issuer}
}

func (s *testServer) addOrder(t *testing.T, o domain.DeliveryOrder) int64 {
	t.Helper()
	if o.Priority == "" {
		o.Priority = domain.PriorityNormal
	}
	if o.DeliveryStatus == "" {
		o.DeliveryStatus = domain.StatusReadyForPickup
	}
	o.CreatedAt = time.Now()
	id, err := s.repo.Create(context.Background(), &o)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthSetsRequestID(t *testing.T) {
	s := newTestServer(t, domain.GeoPoint{Lat: 40, Lng: -74})

	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" || body["ledger_blocks"] != float64(1) {
		t.Fatalf("health = %v, want status ok with the genesis block", body)
	}

	rec = s.do(t, http.MethodPost, "/health", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health status = %d, want 405", rec.Code)
	}
}

func TestAssignAndDeliverFlow(t *testing.T) {
	s := newTestServer(t, domain.GeoPoint{Lat: 40, Lng: -74})
	id := s.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "1 Main St", CODAmount: decimal.NewFromInt(100)})
	big := s.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "2 Main St", CODAmount: decimal.NewFromInt(15000)})

	rec := s.do(t, http.MethodPost, "/orders/"+itoa(id)+"/assign", dto.AssignRequest{DriverID: "D1", AssignedBy: "ops"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign status = %d body=%s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodPost, "/orders/"+itoa(big)+"/assign", dto.AssignRequest{DriverID: "D1"}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("over-ceiling assign status = %d, want 422", rec.Code)
	}

	collected := decimal.NewFromInt(100)
	rec = s.do(t, http.MethodPost, "/orders/"+itoa(id)+"/status", dto.StatusRequest{Status: "delivered", CollectedAmount: &collected}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deliver status = %d body=%s", rec.Code, rec.Body)
	}
	var order domain.DeliveryOrder
	if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
		t.Fatal(err)
	}
	if order.DeliveryStatus != domain.StatusDelivered || !order.CODDiscrepancy.IsZero() {
		t.Fatalf("order = %+v", order)
	}

	rec = s.do(t, http.MethodGet, "/drivers/D1/wallet", nil, nil)
	var wallet dto.WalletResponse
	if err := json.NewDecoder(rec.Body).Decode(&wallet); err != nil {
		t.Fatal(err)
	}
	if !wallet.Balance.IsZero() {
		t.Fatalf("wallet = %s, want 0", wallet.Balance)
	}

	rec = s.do(t, http.MethodGet, "/ledger/verify", nil, nil)
	var verify dto.LedgerVerifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&verify); err != nil {
		t.Fatal(err)
	}
	if !verify.Valid || verify.Blocks != 2 {
		t.Fatalf("verify = %+v, want valid with 2 blocks", verify)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, domain.GeoPoint{})
	id := s.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "1 Main St"})

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown order", http.MethodPost, "/orders/999/status", dto.StatusRequest{Status: "picked_up"}, http.StatusNotFound},
		{"bad status", http.MethodPost, "/orders/" + itoa(id) + "/status", dto.StatusRequest{Status: "lost"}, http.StatusUnprocessableEntity},
		{"bad id", http.MethodPost, "/orders/abc/status", dto.StatusRequest{Status: "picked_up"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/orders/" + itoa(id) + "/issues", `{"kind":"x"}`, http.StatusBadRequest},
		{"no depot", http.MethodPost, "/routes/optimize", dto.OptimizeRouteRequest{OrderIDs: []int64{id}}, http.StatusConflict},
		{"bad period", http.MethodGet, "/drivers/D1/metrics?period=decade", nil, http.StatusUnprocessableEntity},
		{"driver without fix", http.MethodGet, "/routes/drivers?driver_id=D9", nil, http.StatusConflict},
	}
	for _, c := range cases {
		rec := s.do(t, c.method, c.path, c.body, nil)
		if rec.Code != c.want {
			t.Errorf("%s: status = %d, want %d (body %s)", c.name, rec.Code, c.want, rec.Body)
		}
	}
}

func TestOptimizeUsesDepotAndQueue(t *testing.T) {
	s := newTestServer(t, domain.GeoPoint{Lat: 40, Lng: -74})
	s.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "1 Main St"})
	s.addOrder(t, domain.DeliveryOrder{DeliveryAddress: "2 Main St", Priority: domain.PriorityUrgent})

	rec := s.do(t, http.MethodPost, "/routes/optimize", dto.OptimizeRouteRequest{}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var plan domain.RoutePlan
	if err := json.NewDecoder(rec.Body).Decode(&plan); err != nil {
		t.Fatal(err)
	}
	if len(plan.Stops) != 2 {
		t.Fatalf("stops = %d, want 2", len(plan.Stops))
	}
}

func TestDriverLocationRequiresToken(t *testing.T) {
	s := newTestServer(t, domain.GeoPoint{Lat: 40, Lng: -74})
	body := dto.LocationRequest{Lat: 40.01, Lng: -74.01, AccuracyMeters: 5}

	if rec := s.do(t, http.MethodPost, "/drivers/D1/location", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}

	other, _ := s.issuer.MakeToken("D2", auth.RoleDriver, time.Hour)
	h := http.Header{"Authorization": {"Bearer " + other}}
	if rec := s.do(t, http.MethodPost, "/drivers/D1/location", body, h); rec.Code != http.StatusForbidden {
		t.Fatalf("other driver status = %d, want 403", rec.Code)
	}

	own, _ := s.issuer.MakeToken("D1", auth.RoleDriver, time.Hour)
	h = http.Header{"Authorization": {"Bearer " + own}}
	rec := s.do(t, http.MethodPost, "/drivers/D1/location", body, h)
	if rec.Code != http.StatusOK {
		t.Fatalf("own token status = %d body=%s", rec.Code, rec.Body)
	}
	var loc domain.DriverLocation
	if err := json.NewDecoder(rec.Body).Decode(&loc); err != nil {
		t.Fatal(err)
	}
	if loc.Location.Lat != 40.01 || loc.AccuracyMeters != 5 {
		t.Fatalf("location = %+v", loc)
	}

	if rec := s.do(t, http.MethodGet, "/routes/drivers?driver_id=D1", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("driver routes status = %d body=%s", rec.Code, rec.Body)
	}
}

func TestQueueIsRedacted(t *testing.T) {
	s := newTestServer(t, domain.GeoPoint{Lat: 40, Lng: -74})
	s.addOrder(t, domain.DeliveryOrder{
		DeliveryAddress: "12 Elm St, Springfield",
		Customer:        domain.Customer{Name: "Alan Turing", Phone: "555 123 4567"},
		CODAmount:       decimal.RequireFromString("1234.5"),
	})

	rec := s.do(t, http.MethodGet, "/deliveries/queue", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res dto.QueueResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if len(res.Orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(res.Orders))
	}
	o := res.Orders[0]
	if o.Customer != "Alan T." || o.Phone != "******4567" || o.Area != "Elm St, Springfield" || o.CODDue != "1,234.50" {
		t.Fatalf("redacted order = %+v", o)
	}
}

func TestReportAndListIncidents(t *testing.T) {
	s := newTestServer(t, domain.GeoPoint{Lat: 40, Lng: -74})

	req := dto.IncidentRequest{Location: domain.GeoPoint{Lat: 40.01, Lng: -74}, RadiusMeters: 300, Severity: "medium", DelayMinutes: 5}
	rec := s.do(t, http.MethodPost, "/incidents", req, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("report status = %d body=%s", rec.Code, rec.Body)
	}

	bad := dto.IncidentRequest{Location: domain.GeoPoint{Lat: 40.01, Lng: -74}, RadiusMeters: 300, Severity: "mild"}
	if rec := s.do(t, http.MethodPost, "/incidents", bad, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad severity status = %d, want 422", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/incidents", nil, nil)
	var incidents []domain.Incident
	if err := json.NewDecoder(rec.Body).Decode(&incidents); err != nil {
		t.Fatal(err)
	}
	if len(incidents) != 1 || incidents[0].Severity != domain.SeverityMedium {
		t.Fatalf("incidents = %+v", incidents)
	}
}

func TestComplianceEndpoints(t *testing.T) {
	s := newTestServer(t, domain.GeoPoint{Lat: 40, Lng: -74})

	rec := s.do(t, http.MethodPost, "/compliance/checks", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("checks status = %d", rec.Code)
	}
	var checks dto.ComplianceCheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&checks); err != nil {
		t.Fatal(err)
	}
	if checks.Unassigned != nil || len(checks.WalletLimits) != 0 {
		t.Fatalf("checks = %+v, want nothing to report", checks)
	}

	rec = s.do(t, http.MethodGet, "/compliance/alerts", nil, nil)
	var alerts dto.AlertsResponse
	if err := json.NewDecoder(rec.Body).Decode(&alerts); err != nil {
		t.Fatal(err)
	}
	if alerts.Alerts == nil || len(alerts.Alerts) != 0 {
		t.Fatalf("alerts = %+v, want empty list", alerts)
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
