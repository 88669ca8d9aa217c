package domain

import "time"

// ActiveDelivery tracks an order a driver is physically carrying.
type ActiveDelivery struct {
	OrderID      int64          `json:"order_id"`
	DriverID     string         `json:"driver_id"`
	Status       DeliveryStatus `json:"status"`
	LastLocation *GeoPoint      `json:"last_location,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DriverLocation is the last position reported by a driver's device.
type DriverLocation struct {
	DriverID       string    `json:"driver_id"`
	Location       GeoPoint  `json:"location"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	RecordedAt     time.Time `json:"recorded_at"`
}

type MetricsPeriod string

const (
	PeriodToday MetricsPeriod = "today"
	PeriodWeek  MetricsPeriod = "week"
	PeriodMonth MetricsPeriod = "month"
)

// DeliveryMetrics summarises a driver's orders within a period.
type DeliveryMetrics struct {
	DriverID            string        `json:"driver_id"`
	Period              MetricsPeriod `json:"period"`
	Total               int           `json:"total"`
	Delivered           int           `json:"delivered"`
	Failed              int           `json:"failed"`
	InProgress          int           `json:"in_progress"`
	SuccessRate         float64       `json:"success_rate"`
	AverageDeliveryTime float64       `json:"average_delivery_time_minutes"`
	OnTimeDeliveries    int           `json:"on_time_deliveries"`
}

// DeliveryEvent is pushed to realtime subscribers.
type DeliveryEvent struct {
	Type     string         `json:"type"`
	OrderID  int64          `json:"order_id,omitempty"`
	DriverID string         `json:"driver_id,omitempty"`
	Status   DeliveryStatus `json:"status,omitempty"`
	Location *GeoPoint      `json:"location,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditEntry is an append-only record of a state change.
type AuditEntry struct {
	Action    string            `json:"action"`
	OrderID   int64             `json:"order_id,omitempty"`
	DriverID  string            `json:"driver_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
