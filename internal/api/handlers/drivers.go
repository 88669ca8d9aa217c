package handlers

import (
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/auth"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/services"
	"net/http"
)

type DriverHandler struct {
	Deliveries *services.DeliveryService
	COD        *services.CODService
	Auth       *auth.Issuer
}

func (h *DriverHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = string(domain.PeriodToday)
	}
	m, err := h.Deliveries.GetDeliveryMetrics(r.Context(), r.PathValue("id"), period)
	if err != nil {
		writeServiceError(w, r, "delivery metrics", err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

func (h *DriverHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, r, http.StatusOK, dto.WalletResponse{
		DriverID: id,
		Balance:  h.COD.WalletBalance(id),
		Ceiling:  services.WalletCeiling,
	})
}

// UpdateLocation requires a bearer token for the same driver, or a
// dispatcher token.
func (h *DriverHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	driverID := r.PathValue("id")

	claims, err := h.Auth.ParseTokenFromRequest(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !claims.CanActFor(driverID) {
		writeError(w, r, http.StatusForbidden, "driver mismatch")
		return
	}

	var req dto.LocationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	loc := domain.GeoPoint{Lat: req.Lat, Lng: req.Lng}
	if err := h.Deliveries.UpdateDriverLocation(r.Context(), driverID, loc, req.AccuracyMeters); err != nil {
		writeServiceError(w, r, "update driver location", err)
		return
	}

	current, err := h.Deliveries.DriverLocation(driverID)
	if err != nil {
		writeServiceError(w, r, "update driver location", err)
		return
	}
	writeJSON(w, r, http.StatusOK, current)
}

func (h *DriverHandler) ActiveDeliveries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.Deliveries.ActiveDeliveries())
}
