package handlers

import (
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
	"delivery-dispatch-service/internal/services"
	"net/http"
	"strings"
)

type RouteHandler struct {
	Repo       ports.OrderRepository
	Optimizer  *services.RouteOptimizer
	Deliveries *services.DeliveryService
	Depot      domain.GeoPoint
}

// Optimize plans a route over the requested orders, or over the whole queue
// when no ids are given.
func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := h.Depot
	if req.Start != nil {
		start = *req.Start
	}

	var orders []*domain.DeliveryOrder
	if len(req.OrderIDs) == 0 {
		queue, err := h.Deliveries.GetDeliveryQueue(r.Context())
		if err != nil {
			writeServiceError(w, r, "optimize route", err)
			return
		}
		orders = queue
	} else {
		orders = make([]*domain.DeliveryOrder, 0, len(req.OrderIDs))
		for _, id := range req.OrderIDs {
			o, err := h.Repo.Get(r.Context(), id)
			if err != nil {
				writeServiceError(w, r, "optimize route", err)
				return
			}
			orders = append(orders, o)
		}
	}

	plan, err := h.Optimizer.OptimizeRoute(r.Context(), start, orders, req.Incidents)
	if err != nil {
		writeServiceError(w, r, "optimize route", err)
		return
	}
	writeJSON(w, r, http.StatusOK, plan)
}

func (h *RouteHandler) Directions(w http.ResponseWriter, r *http.Request) {
	var req dto.DirectionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.From.IsValid() || !req.To.IsValid() {
		writeError(w, r, http.StatusUnprocessableEntity, "from and to must be valid coordinates")
		return
	}
	writeJSON(w, r, http.StatusOK, h.Optimizer.GetDirections(req.From, req.To))
}

func (h *RouteHandler) Reroute(w http.ResponseWriter, r *http.Request) {
	var req dto.RerouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	proposal, err := h.Optimizer.RerouteForIncident(req.OrderID, req.Route, req.IncidentLocation, req.Severity)
	if err != nil {
		writeServiceError(w, r, "reroute", err)
		return
	}
	writeJSON(w, r, http.StatusOK, proposal)
}

// DriverRoutes accepts driver_id repeated or comma separated.
func (h *RouteHandler) DriverRoutes(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, v := range r.URL.Query()["driver_id"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	plans, err := h.Deliveries.PlanDriverRoutes(r.Context(), ids)
	if err != nil {
		writeServiceError(w, r, "plan driver routes", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.DriverRoutesResponse{Plans: plans})
}
