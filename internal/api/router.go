package api

import (
	"delivery-dispatch-service/internal/adapters/realtime"
	"delivery-dispatch-service/internal/adapters/traffic"
	"delivery-dispatch-service/internal/api/handlers"
	"delivery-dispatch-service/internal/auth"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
	"delivery-dispatch-service/internal/redact"
	"delivery-dispatch-service/internal/services"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP layer needs. cmd/server builds it.
type Deps struct {
	Repo           ports.OrderRepository
	Optimizer      *services.RouteOptimizer
	Deliveries     *services.DeliveryService
	COD            *services.CODService
	Incidents      *traffic.Feed
	Hub            *realtime.Hub
	Auth           *auth.Issuer
	Redactor       *redact.Redactor
	Depot          domain.GeoPoint
	OriginPatterns []string
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	routes := &handlers.RouteHandler{Repo: d.Repo, Optimizer: d.Optimizer, Deliveries: d.Deliveries, Depot: d.Depot}
	orders := &handlers.OrderHandler{Deliveries: d.Deliveries, COD: d.COD, Redactor: d.Redactor}
	drivers := &handlers.DriverHandler{Deliveries: d.Deliveries, COD: d.COD, Auth: d.Auth}
	ledger := &handlers.LedgerHandler{COD: d.COD}
	incidents := &handlers.IncidentHandler{Feed: d.Incidents}
	events := &handlers.EventsHandler{Hub: d.Hub, Auth: d.Auth, OriginPatterns: d.OriginPatterns}
	health := &handlers.HealthHandler{COD: d.COD}

	mux.HandleFunc("GET /health", health.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /routes/optimize", routes.Optimize)
	mux.HandleFunc("POST /routes/directions", routes.Directions)
	mux.HandleFunc("POST /routes/reroute", routes.Reroute)
	mux.HandleFunc("GET /routes/drivers", routes.DriverRoutes)

	mux.HandleFunc("GET /deliveries/queue", orders.Queue)
	mux.HandleFunc("GET /deliveries/active", drivers.ActiveDeliveries)
	mux.HandleFunc("POST /orders/{id}/status", orders.UpdateStatus)
	mux.HandleFunc("POST /orders/{id}/issues", orders.ReportIssue)
	mux.HandleFunc("POST /orders/{id}/assign", orders.Assign)

	mux.HandleFunc("GET /drivers/{id}/metrics", drivers.Metrics)
	mux.HandleFunc("GET /drivers/{id}/wallet", drivers.Wallet)
	mux.HandleFunc("POST /drivers/{id}/location", drivers.UpdateLocation)

	mux.HandleFunc("GET /ledger", ledger.Ledger)
	mux.HandleFunc("GET /ledger/verify", ledger.Verify)
	mux.HandleFunc("GET /compliance/alerts", ledger.Alerts)
	mux.HandleFunc("POST /compliance/checks", ledger.RunChecks)

	mux.HandleFunc("GET /incidents", incidents.List)
	mux.HandleFunc("POST /incidents", incidents.Report)

	mux.HandleFunc("GET /ws", events.Stream)

	return loggingMiddleware(mux)
}
