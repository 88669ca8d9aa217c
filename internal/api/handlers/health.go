package handlers

import (
	"delivery-dispatch-service/internal/services"
	"net/http"
)

type HealthHandler struct {
	COD *services.CODService
}

// Health is a liveness check that also reports the sealed ledger height.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	view := h.COD.GetCODLedger()
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         "ok",
		"ledger_blocks":  len(view.Blocks),
		"pending_cod_tx": len(view.PendingTransactions),
	})
}
