package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AlertCODDiscrepancy       = "cod_discrepancy"
	AlertUnassignedCODTimeout = "unassigned_cod_timeout"
	AlertWalletLimitProximity = "wallet_limit_proximity"
)

type ComplianceAlert struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Severity        Severity        `json:"severity"`
	OrderID         int64           `json:"order_id,omitempty"`
	OrderIDs        []int64         `json:"order_ids,omitempty"`
	DriverID        string          `json:"driver_id,omitempty"`
	Discrepancy     decimal.Decimal `json:"discrepancy"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Timestamp       time.Time       `json:"timestamp"`
	EscalationLevel int             `json:"escalation_level"`
	AutoActions     []string        `json:"auto_actions"`
}

// VerificationRequest asks the customer to confirm the amount handed over.
type VerificationRequest struct {
	ID        string          `json:"id"`
	OrderID   int64           `json:"order_id"`
	Customer  Customer        `json:"customer"`
	Code      string          `json:"code"`
	Collected decimal.Decimal `json:"collected"`
	Due       decimal.Decimal `json:"due"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}
