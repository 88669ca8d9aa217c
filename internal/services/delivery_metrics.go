package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"fmt"
	"strings"
	"time"
)

// periodStart returns the inclusive lower bound on CreatedAt for a period.
func periodStart(period domain.MetricsPeriod, now time.Time) (time.Time, error) {
	switch period {
	case domain.PeriodToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case domain.PeriodWeek:
		return now.AddDate(0, 0, -7), nil
	case domain.PeriodMonth:
		return now.AddDate(0, -1, 0), nil
	}
	return time.Time{}, domain.Invalid("period", "unknown period %q (want today, week or month)", period)
}

// GetDeliveryMetrics summarises a driver's orders created within period.
//
// Average delivery time runs from the picked_up entry to the delivered entry
// of each delivered order. Orders without a delivery window count as on time.
func (s *DeliveryService) GetDeliveryMetrics(
	ctx context.Context,
	driverID string,
	period string,
) (_ *domain.DeliveryMetrics, err error) {
	defer obs.Time(ctx, "deliveries.GetDeliveryMetrics")(&err)

	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, domain.Invalid("driver_id", "must be non-empty")
	}
	p := domain.MetricsPeriod(period)
	from, err := periodStart(p, s.now())
	if err != nil {
		return nil, err
	}

	orders, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("delivery metrics: list orders: %w", err)
	}

	m := &domain.DeliveryMetrics{DriverID: driverID, Period: p}
	var totalMinutes float64
	timed := 0

	for _, o := range orders {
		if o.AssignedDriver != driverID || o.CreatedAt.Before(from) {
			continue
		}
		m.Total++

		switch o.DeliveryStatus {
		case domain.StatusDelivered:
			m.Delivered++
			deliveredAt, ok := o.StatusTime(domain.StatusDelivered)
			if !ok {
				continue
			}
			if pickedAt, ok := o.StatusTime(domain.StatusPickedUp); ok {
				totalMinutes += deliveredAt.Sub(pickedAt).Minutes()
				timed++
			}
			if o.DeliveryWindow == nil || o.DeliveryWindow.End.IsZero() || !deliveredAt.After(o.DeliveryWindow.End) {
				m.OnTimeDeliveries++
			}
		case domain.StatusFailed:
			m.Failed++
		default:
			m.InProgress++
		}
	}

	if m.Total > 0 {
		m.SuccessRate = float64(m.Delivered) / float64(m.Total) * 100
	}
	if timed > 0 {
		m.AverageDeliveryTime = totalMinutes / float64(timed)
	}
	return m, nil
}
