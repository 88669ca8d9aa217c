// Package ledger keeps the append-only, hash-chained record of COD
// assignment and collection events.
package ledger

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"
)

const (
	// SchemaVersion identifies the persisted snapshot layout.
	SchemaVersion = 1

	DefaultKey         = "cod_ledger"
	DefaultThreshold   = 2
	DefaultMineTimeout = 10 * time.Second
)

type Options struct {
	Sealer Sealer
	// Store persists snapshots; nil keeps the ledger in memory only.
	Store ports.KeyValueStore
	Key   string
	// Threshold is the pending count that triggers sealing a block.
	Threshold   int
	MineTimeout time.Duration
	Now         func() time.Time
}

// Ledger holds sealed blocks and the pending transaction pool. Append and
// sealing share one mutex so the pool is never sealed twice.
type Ledger struct {
	mu      sync.Mutex
	blocks  []domain.LedgerBlock
	pending []domain.LedgerTransaction

	sealer      Sealer
	store       ports.KeyValueStore
	key         string
	threshold   int
	mineTimeout time.Duration
	now         func() time.Time
}

type snapshot struct {
	SchemaVersion       int                        `json:"schema_version"`
	Difficulty          int                        `json:"difficulty"`
	Blocks              []domain.LedgerBlock       `json:"blocks"`
	PendingTransactions []domain.LedgerTransaction `json:"pending_transactions"`
}

// Open loads the ledger from the store, or synthesises and persists a genesis
// block when none exists. A stored chain that fails verification is rejected
// with a *domain.LedgerIntegrityError.
func Open(ctx context.Context, opts Options) (_ *Ledger, err error) {
	defer obs.Time(ctx, "ledger.Open")(&err)

	if opts.Sealer == nil {
		opts.Sealer = NewProofOfWork(DefaultDifficulty)
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MineTimeout <= 0 {
		opts.MineTimeout = DefaultMineTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Ledger{
		sealer:      opts.Sealer,
		store:       opts.Store,
		key:         opts.Key,
		threshold:   opts.Threshold,
		mineTimeout: opts.MineTimeout,
		now:         opts.Now,
	}

	loaded, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	if loaded {
		return l, nil
	}

	genesis := domain.LedgerBlock{
		ID:           0,
		Timestamp:    l.now().UTC(),
		Transactions: []domain.LedgerTransaction{},
		PreviousHash: "0",
	}
	sealCtx, cancel := context.WithTimeout(ctx, l.mineTimeout)
	defer cancel()
	if err := l.sealer.Seal(sealCtx, &genesis); err != nil {
		return nil, fmt.Errorf("open ledger: seal genesis: %w", err)
	}
	l.blocks = []domain.LedgerBlock{genesis}

	if err := l.persist(ctx); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	log.Printf("op=ledger.Open genesis=%.12s difficulty=%d", genesis.Hash, l.sealer.Difficulty())
	return l, nil
}

func (l *Ledger) load(ctx context.Context) (bool, error) {
	if l.store == nil {
		return false, nil
	}
	raw, err := l.store.Get(ctx, l.key)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open ledger: read %q: %w", l.key, err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return false, fmt.Errorf("open ledger: decode %q: %w", l.key, err)
	}
	if snap.SchemaVersion != SchemaVersion {
		return false, fmt.Errorf("open ledger: unsupported schema_version %d (want %d)", snap.SchemaVersion, SchemaVersion)
	}
	if len(snap.Blocks) == 0 {
		return false, &domain.LedgerIntegrityError{BlockID: 0, Reason: "stored ledger has no genesis block"}
	}
	if err := verifyChain(snap.Blocks, l.sealer); err != nil {
		return false, err
	}

	l.blocks = snap.Blocks
	l.pending = snap.PendingTransactions
	return true, nil
}

// Append queues tx and seals a block once the pool reaches the threshold.
//
// A failed or timed-out seal is logged and counted but is not returned: the
// transactions stay pending and are picked up by the next Append or Mine.
// Errors returned are persistence failures.
func (l *Ledger) Append(ctx context.Context, tx domain.LedgerTransaction) error {
	if tx.Timestamp.IsZero() {
		tx.Timestamp = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, tx)
	if len(l.pending) >= l.threshold {
		if err := l.mineLocked(ctx); err != nil {
			log.Printf("req_id=%s op=ledger.Append pending=%d mine_err=%v", obs.RequestID(ctx), len(l.pending), err)
		}
	}

	if err := l.persist(ctx); err != nil {
		return fmt.Errorf("ledger append: %w", err)
	}
	return nil
}

// Mine seals every pending transaction into a block now. It is the retry path
// after a failed seal and a no-op when nothing is pending.
func (l *Ledger) Mine(ctx context.Context) (err error) {
	defer obs.Time(ctx, "ledger.Mine")(&err)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil
	}
	if err := l.mineLocked(ctx); err != nil {
		return fmt.Errorf("ledger mine: %w", err)
	}
	if err := l.persist(ctx); err != nil {
		return fmt.Errorf("ledger mine: %w", err)
	}
	return nil
}

func (l *Ledger) mineLocked(ctx context.Context) error {
	prev := l.blocks[len(l.blocks)-1]
	block := domain.LedgerBlock{
		ID:           prev.ID + 1,
		Timestamp:    l.now().UTC(),
		Transactions: slices.Clone(l.pending),
		PreviousHash: prev.Hash,
	}

	// Sealing outlives a cancelled request but never the mining timeout.
	sealCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.mineTimeout)
	defer cancel()

	start := time.Now()
	err := l.sealer.Seal(sealCtx, &block)
	obs.MiningDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		obs.MiningFailuresTotal.Inc()
		return fmt.Errorf("seal block %d: %w", block.ID, err)
	}

	l.blocks = append(l.blocks, block)
	l.pending = nil
	obs.BlocksMinedTotal.Inc()
	log.Printf("req_id=%s op=ledger.mine block_id=%d txs=%d nonce=%d dur=%dms",
		obs.RequestID(ctx), block.ID, len(block.Transactions), block.Nonce, time.Since(start).Milliseconds())
	return nil
}

func (l *Ledger) persist(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	raw, err := json.Marshal(snapshot{
		SchemaVersion:       SchemaVersion,
		Difficulty:          l.sealer.Difficulty(),
		Blocks:              l.blocks,
		PendingTransactions: l.pending,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := l.store.Put(ctx, l.key, raw); err != nil {
		return fmt.Errorf("write %q: %w", l.key, err)
	}
	return nil
}

// Verify re-checks every seal and hash link in the chain.
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return verifyChain(l.blocks, l.sealer)
}

func verifyChain(blocks []domain.LedgerBlock, sealer Sealer) error {
	for i, b := range blocks {
		if i == 0 {
			if b.PreviousHash != "0" {
				return &domain.LedgerIntegrityError{BlockID: b.ID, Reason: "genesis previous hash must be \"0\""}
			}
		} else {
			prev := blocks[i-1]
			if b.PreviousHash != prev.Hash {
				return &domain.LedgerIntegrityError{BlockID: b.ID, Reason: "previous hash does not match prior block"}
			}
			if b.ID != prev.ID+1 {
				return &domain.LedgerIntegrityError{BlockID: b.ID, Reason: fmt.Sprintf("id follows %d", prev.ID)}
			}
		}
		if err := sealer.Verify(b); err != nil {
			return &domain.LedgerIntegrityError{BlockID: b.ID, Reason: err.Error()}
		}
	}
	return nil
}

// View returns a copy of the chain and the pending pool.
func (l *Ledger) View() domain.LedgerView {
	l.mu.Lock()
	defer l.mu.Unlock()

	blocks := make([]domain.LedgerBlock, len(l.blocks))
	for i, b := range l.blocks {
		b.Transactions = slices.Clone(b.Transactions)
		blocks[i] = b
	}
	pending := slices.Clone(l.pending)
	if pending == nil {
		pending = []domain.LedgerTransaction{}
	}
	return domain.LedgerView{
		Blocks:              blocks,
		PendingTransactions: pending,
		Difficulty:          l.sealer.Difficulty(),
	}
}
