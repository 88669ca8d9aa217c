package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

type DeliveryStatus string

const (
	StatusReadyForPickup DeliveryStatus = "ready_for_pickup"
	StatusAssigned       DeliveryStatus = "assigned"
	StatusPickedUp       DeliveryStatus = "picked_up"
	StatusInTransit      DeliveryStatus = "in_transit"
	StatusOutForDelivery DeliveryStatus = "out_for_delivery"
	StatusDelivered      DeliveryStatus = "delivered"
	StatusFailed         DeliveryStatus = "delivery_failed"
)

var knownStatuses = []DeliveryStatus{
	StatusReadyForPickup,
	StatusAssigned,
	StatusPickedUp,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
	StatusFailed,
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(s)
	if !slices.Contains(knownStatuses, st) {
		return "", Invalid("status", "unknown delivery status %q", s)
	}
	return st, nil
}

func (s DeliveryStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Queued reports whether an order in this status belongs in the delivery queue.
func (s DeliveryStatus) Queued() bool {
	switch s {
	case StatusReadyForPickup, StatusPickedUp, StatusInTransit, StatusOutForDelivery:
		return true
	}
	return false
}

type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type AssignmentRecord struct {
	DriverID   string          `json:"driver_id"`
	AssignedBy string          `json:"assigned_by,omitempty"`
	AssignedAt time.Time       `json:"assigned_at"`
	CODDue     decimal.Decimal `json:"cod_due"`
	Notes      string          `json:"notes,omitempty"`
	Location   *GeoPoint       `json:"location,omitempty"`
}

type TimelineEntry struct {
	Status    DeliveryStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Location  *GeoPoint      `json:"location,omitempty"`
	Notes     string         `json:"notes,omitempty"`
}

type GPSVerification struct {
	Location       GeoPoint  `json:"location"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	RecordedAt     time.Time `json:"recorded_at"`
}

type WalletDeduction struct {
	DriverID string          `json:"driver_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
	At       time.Time       `json:"at"`
}

type DeliveryIssue struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Location    *GeoPoint `json:"location,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
}

// Represents a customer order moving through delivery.
// Orders are created by the storefront's order flow and are never deleted by
// this service; history slices are append-only.
type DeliveryOrder struct {
	ID                 int64              `json:"id"`
	DeliveryAddress    string             `json:"delivery_address"`
	Customer           Customer           `json:"customer"`
	Priority           Priority           `json:"priority"`
	DeliveryWindow     *TimeWindow        `json:"delivery_window,omitempty"`
	DeliveryStatus     DeliveryStatus     `json:"delivery_status"`
	CODAmount          decimal.Decimal    `json:"cod_amount"`
	CODDueAmount       decimal.Decimal    `json:"cod_due_amount"`
	CODCollectedAmount decimal.Decimal    `json:"cod_collected_amount"`
	CODDiscrepancy     decimal.Decimal    `json:"cod_discrepancy"`
	AssignedDriver     string             `json:"assigned_driver,omitempty"`
	AssignmentHistory  []AssignmentRecord `json:"assignment_history,omitempty"`
	DeliveryTimeline   []TimelineEntry    `json:"delivery_timeline,omitempty"`
	GPSVerification    *GPSVerification   `json:"gps_verification,omitempty"`
	Deductions         []WalletDeduction  `json:"deductions,omitempty"`
	Issues             []DeliveryIssue    `json:"issues,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (o *DeliveryOrder) Clone() *DeliveryOrder {
	if o == nil {
		return nil
	}
	c := *o
	if o.DeliveryWindow != nil {
		w := *o.DeliveryWindow
		c.DeliveryWindow = &w
	}
	if o.GPSVerification != nil {
		g := *o.GPSVerification
		c.GPSVerification = &g
	}
	c.AssignmentHistory = slices.Clone(o.AssignmentHistory)
	c.DeliveryTimeline = slices.Clone(o.DeliveryTimeline)
	c.Deductions = slices.Clone(o.Deductions)
	c.Issues = slices.Clone(o.Issues)
	return &c
}

// RecordStatus moves the order to status and appends a timeline entry.
func (o *DeliveryOrder) RecordStatus(status DeliveryStatus, at time.Time, loc *GeoPoint, notes string) {
	o.DeliveryStatus = status
	o.DeliveryTimeline = append(o.DeliveryTimeline, TimelineEntry{
		Status:    status,
		Timestamp: at,
		Location:  loc,
		Notes:     notes,
	})
	o.UpdatedAt = at
}

// StatusTime returns the timestamp of the last timeline entry with status.
func (o *DeliveryOrder) StatusTime(status DeliveryStatus) (time.Time, bool) {
	for i := len(o.DeliveryTimeline) - 1; i >= 0; i-- {
		if o.DeliveryTimeline[i].Status == status {
			return o.DeliveryTimeline[i].Timestamp, true
		}
	}
	return time.Time{}, false
}

// WindowStart is the sort key used by the queue: window start, else creation time.
func (o *DeliveryOrder) WindowStart() time.Time {
	if o.DeliveryWindow != nil && !o.DeliveryWindow.Start.IsZero() {
		return o.DeliveryWindow.Start
	}
	return o.CreatedAt
}
