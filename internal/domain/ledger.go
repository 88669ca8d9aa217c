package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxAssignment TransactionType = "assignment"
	TxCollection TransactionType = "collection"
)

// LedgerTransaction is one COD event. It is immutable once sealed into a block.
type LedgerTransaction struct {
	Type      TransactionType   `json:"type"`
	OrderID   int64             `json:"order_id"`
	DriverID  string            `json:"driver_id"`
	Amount    decimal.Decimal   `json:"amount"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// LedgerBlock groups sealed transactions. Blocks are chained through
// PreviousHash; the genesis block carries PreviousHash "0".
type LedgerBlock struct {
	ID           int64               `json:"id"`
	Timestamp    time.Time           `json:"timestamp"`
	Transactions []LedgerTransaction `json:"transactions"`
	PreviousHash string              `json:"previous_hash"`
	Hash         string              `json:"hash"`
	Nonce        int64               `json:"nonce"`
	// Difficulty is the proof-of-work target the block was sealed with.
	Difficulty   int                 `json:"difficulty"`
}

// LedgerView is the read model returned to callers.
type LedgerView struct {
	Blocks              []LedgerBlock       `json:"blocks"`
	PendingTransactions []LedgerTransaction `json:"pending_transactions"`
	Difficulty          int                 `json:"difficulty"`
}
