package handlers

import (
	"delivery-dispatch-service/internal/adapters/traffic"
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/services"
	"net/http"
	"time"
)

type LedgerHandler struct {
	COD *services.CODService
}

func (h *LedgerHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.COD.GetCODLedger())
}

// Verify always answers 200; a broken chain is reported in the body.
func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res := dto.LedgerVerifyResponse{Valid: true, Blocks: len(h.COD.GetCODLedger().Blocks)}
	if err := h.COD.VerifyLedger(); err != nil {
		res.Valid = false
		res.Error = err.Error()
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *LedgerHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.COD.Alerts()
	if alerts == nil {
		alerts = []domain.ComplianceAlert{}
	}
	writeJSON(w, r, http.StatusOK, dto.AlertsResponse{Alerts: alerts})
}

func (h *LedgerHandler) RunChecks(w http.ResponseWriter, r *http.Request) {
	unassigned, err := h.COD.CheckUnassignedCODOrders(r.Context())
	if err != nil {
		writeServiceError(w, r, "compliance checks", err)
		return
	}
	limits := h.COD.CheckAgentWalletLimits(r.Context())
	if limits == nil {
		limits = []domain.ComplianceAlert{}
	}
	writeJSON(w, r, http.StatusOK, dto.ComplianceCheckResponse{Unassigned: unassigned, WalletLimits: limits})
}

type IncidentHandler struct {
	Feed *traffic.Feed
}

func (h *IncidentHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req dto.IncidentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ExpiresInMinutes < 0 {
		writeError(w, r, http.StatusUnprocessableEntity, "expires_in_minutes must be non-negative")
		return
	}

	inc := domain.Incident{
		Location:     req.Location,
		RadiusMeters: req.RadiusMeters,
		Severity:     domain.Severity(req.Severity),
		DelayMinutes: req.DelayMinutes,
		Description:  req.Description,
	}
	if req.ExpiresInMinutes > 0 {
		inc.ExpiresAt = time.Now().Add(time.Duration(req.ExpiresInMinutes) * time.Minute)
	}

	saved, err := h.Feed.Report(r.Context(), inc)
	if err != nil {
		writeServiceError(w, r, "report incident", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, saved)
}

func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.Feed.ActiveIncidents(r.Context())
	if err != nil {
		writeServiceError(w, r, "list incidents", err)
		return
	}
	writeJSON(w, r, http.StatusOK, incidents)
}
