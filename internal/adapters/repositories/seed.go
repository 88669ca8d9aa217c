package repositories

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// SeedFromJSON loads orders from a JSON array into repo. Entries with an id
// are upserted; entries without one are created. It returns the count stored.
func SeedFromJSON(ctx context.Context, repo ports.OrderRepository, jsonPath string, now time.Time) (int, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("seed orders: read %q: %w", jsonPath, err)
	}

	var data []*domain.DeliveryOrder
	if err := json.Unmarshal(bytes, &data); err != nil {
		return 0, fmt.Errorf("seed orders: parse json: %w", err)
	}

	for i, o := range data {
		if o == nil {
			return 0, fmt.Errorf("seed orders: item at index %d is null", i+1)
		}
		o.DeliveryAddress = strings.TrimSpace(o.DeliveryAddress)
		if o.DeliveryAddress == "" {
			return 0, fmt.Errorf("seed orders: item at index %d: delivery_address cannot be empty", i+1)
		}
		if o.CODAmount.IsNegative() {
			return 0, fmt.Errorf("seed orders: item at index %d: cod_amount must be non-negative", i+1)
		}
		if o.Priority == "" {
			o.Priority = domain.PriorityNormal
		}
		if o.DeliveryStatus == "" {
			o.DeliveryStatus = domain.StatusReadyForPickup
		}
		if _, err := domain.ParseStatus(string(o.DeliveryStatus)); err != nil {
			return 0, fmt.Errorf("seed orders: item at index %d: %w", i+1, err)
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		if o.UpdatedAt.IsZero() {
			o.UpdatedAt = o.CreatedAt
		}
	}

	for i, o := range data {
		if o.ID > 0 {
			err = repo.Upsert(ctx, o)
		} else {
			_, err = repo.Create(ctx, o)
		}
		if err != nil {
			return 0, fmt.Errorf("seed orders: store item at index %d: %w", i+1, err)
		}
	}
	return len(data), nil
}
