package dto

import (
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/redact"

	"github.com/shopspring/decimal"
)

type QueueResponse struct {
	Orders []redact.DisplaySafeOrder `json:"orders"`
}

type StatusRequest struct {
	Status   string           `json:"status"`
	Location *domain.GeoPoint `json:"location"`
	Notes    string           `json:"notes"`
	// CollectedAmount is only accepted with status "delivered".
	CollectedAmount *decimal.Decimal `json:"collected_amount"`
}

type IssueRequest struct {
	Type        string           `json:"type"`
	Description string           `json:"description"`
	Location    *domain.GeoPoint `json:"location"`
}

type AssignRequest struct {
	DriverID   string           `json:"driver_id"`
	AssignedBy string           `json:"assigned_by"`
	Notes      string           `json:"notes"`
	Location   *domain.GeoPoint `json:"location"`
}

type LocationRequest struct {
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	AccuracyMeters float64 `json:"accuracy_meters"`
}

type WalletResponse struct {
	DriverID string          `json:"driver_id"`
	Balance  decimal.Decimal `json:"balance"`
	Ceiling  decimal.Decimal `json:"ceiling"`
}

type LedgerVerifyResponse struct {
	Valid  bool   `json:"valid"`
	Blocks int    `json:"blocks"`
	Error  string `json:"error,omitempty"`
}

type ComplianceCheckResponse struct {
	Unassigned   *domain.ComplianceAlert  `json:"unassigned_cod"`
	WalletLimits []domain.ComplianceAlert `json:"wallet_limits"`
}

type AlertsResponse struct {
	Alerts []domain.ComplianceAlert `json:"alerts"`
}
