package services

import (
	"context"
	"delivery-dispatch-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/shopspring/decimal"
)

const walletsKey = "driver_wallets"

// WalletCeiling is the most COD cash a driver may hold at once.
var WalletCeiling = decimal.NewFromInt(15000)

type walletSnapshot struct {
	SchemaVersion int                        `json:"schema_version"`
	Balances      map[string]decimal.Decimal `json:"balances"`
}

// walletBook tracks the COD cash each driver currently holds. Callers
// serialise read-check-write per driver; the book only guards its map.
type walletBook struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	store    ports.KeyValueStore
}

func loadWallets(ctx context.Context, store ports.KeyValueStore) (*walletBook, error) {
	w := &walletBook{balances: make(map[string]decimal.Decimal), store: store}
	if store == nil {
		return w, nil
	}

	raw, err := store.Get(ctx, walletsKey)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}

	var snap walletSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("load wallets: decode: %w", err)
	}
	if snap.SchemaVersion != 1 {
		return nil, fmt.Errorf("load wallets: unsupported schema_version %d", snap.SchemaVersion)
	}
	if snap.Balances != nil {
		w.balances = snap.Balances
	}
	return w, nil
}

func (w *walletBook) Balance(driverID string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[driverID]
}

// Adjust adds delta to the driver's balance and persists the book. The
// in-memory balance is updated even when persisting fails.
func (w *walletBook) Adjust(ctx context.Context, driverID string, delta decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.balances[driverID] = w.balances[driverID].Add(delta)
	if w.store == nil {
		return nil
	}
	raw, err := json.Marshal(walletSnapshot{SchemaVersion: 1, Balances: w.balances})
	if err != nil {
		return fmt.Errorf("save wallets: encode: %w", err)
	}
	if err := w.store.Put(ctx, walletsKey, raw); err != nil {
		return fmt.Errorf("save wallets: %w", err)
	}
	return nil
}

func (w *walletBook) Snapshot() map[string]decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.balances)
}
