package handlers

import (
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/redact"
	"delivery-dispatch-service/internal/services"
	"net/http"
)

// OrderHandler exposes the delivery queue and order state changes.
type OrderHandler struct {
	Deliveries *services.DeliveryService
	COD        *services.CODService
	Redactor   *redact.Redactor
}

func (h *OrderHandler) Queue(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Deliveries.GetDeliveryQueue(r.Context())
	if err != nil {
		writeServiceError(w, r, "delivery queue", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.QueueResponse{Orders: h.Redactor.Orders(orders)})
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var collection *services.CODCollection
	if req.CollectedAmount != nil {
		collection = &services.CODCollection{CollectedAmount: *req.CollectedAmount}
	}

	order, err := h.COD.UpdateDeliveryStatus(r.Context(), id, req.Status, req.Location, req.Notes, collection)
	if err != nil {
		writeServiceError(w, r, "update status", err)
		return
	}
	writeJSON(w, r, http.StatusOK, order)
}

func (h *OrderHandler) ReportIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.Deliveries.ReportDeliveryIssue(r.Context(), id, req.Type, req.Description, req.Location)
	if err != nil {
		writeServiceError(w, r, "report issue", err)
		return
	}
	writeJSON(w, r, http.StatusOK, order)
}

func (h *OrderHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.AssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.COD.AssignDriver(r.Context(), id, req.DriverID, services.AssignmentData{
		AssignedBy: req.AssignedBy,
		Notes:      req.Notes,
		Location:   req.Location,
	})
	if err != nil {
		writeServiceError(w, r, "assign driver", err)
		return
	}
	writeJSON(w, r, http.StatusOK, order)
}
