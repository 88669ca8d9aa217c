package ledger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"delivery-dispatch-service/internal/domain"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultDifficulty is the proof-of-work target used when none is configured.
const DefaultDifficulty = 3

// Sealer computes and checks the hash that seals a block into the chain.
type Sealer interface {
	// Seal sets block.Nonce and block.Hash. It must honour ctx cancellation.
	Seal(ctx context.Context, block *domain.LedgerBlock) error
	// Verify reports whether block.Hash is a valid seal of the block's content.
	Verify(block domain.LedgerBlock) error
	Difficulty() int
}

type hashedTx struct {
	Type      string            `json:"type"`
	OrderID   int64             `json:"order_id"`
	DriverID  string            `json:"driver_id"`
	Amount    string            `json:"amount"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type hashedBlock struct {
	ID           int64      `json:"id"`
	Timestamp    string     `json:"timestamp"`
	Transactions []hashedTx `json:"transactions"`
	PreviousHash string     `json:"previous_hash"`
	Nonce        int64      `json:"nonce"`
	Difficulty   int        `json:"difficulty,omitempty"`
}

// blockPayload is the canonical byte form hashed by every sealer. Times are
// UTC RFC 3339 with nanoseconds and amounts use their shortest decimal form,
// so a block reloaded from storage hashes to the same value.
func blockPayload(b domain.LedgerBlock) []byte {
	hb := hashedBlock{
		ID:           b.ID,
		Timestamp:    b.Timestamp.UTC().Format(time.RFC3339Nano),
		Transactions: make([]hashedTx, 0, len(b.Transactions)),
		PreviousHash: b.PreviousHash,
		Nonce:        b.Nonce,
		Difficulty:   b.Difficulty,
	}
	for _, tx := range b.Transactions {
		hb.Transactions = append(hb.Transactions, hashedTx{
			Type:      string(tx.Type),
			OrderID:   tx.OrderID,
			DriverID:  tx.DriverID,
			Amount:    tx.Amount.String(),
			Timestamp: tx.Timestamp.UTC().Format(time.RFC3339Nano),
			Metadata:  tx.Metadata,
		})
	}
	// Marshalling plain strings, ints and a string map cannot fail.
	out, _ := json.Marshal(hb)
	return out
}

// HashBlock returns the hex SHA-256 of the block's canonical payload.
func HashBlock(b domain.LedgerBlock) string {
	sum := sha256.Sum256(blockPayload(b))
	return hex.EncodeToString(sum[:])
}

// ProofOfWork searches nonces until the block hash starts with Target zero
// hex characters. Difficulty 0 accepts the first hash. The target is recorded
// in the block, and Verify checks each block against its own recorded target,
// so changing the configured difficulty only affects blocks sealed afterwards.
type ProofOfWork struct {
	Target int
}

func NewProofOfWork(difficulty int) ProofOfWork {
	if difficulty < 0 {
		difficulty = 0
	}
	return ProofOfWork{Target: difficulty}
}

func (p ProofOfWork) Difficulty() int { return p.Target }

func (p ProofOfWork) Seal(ctx context.Context, block *domain.LedgerBlock) error {
	block.Difficulty = p.Target
	prefix := strings.Repeat("0", p.Target)
	for nonce := int64(0); ; nonce++ {
		if nonce%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("proof of work: block %d: gave up after %d nonces: %w", block.ID, nonce, err)
			}
		}
		block.Nonce = nonce
		h := HashBlock(*block)
		if strings.HasPrefix(h, prefix) {
			block.Hash = h
			return nil
		}
	}
}

func (p ProofOfWork) Verify(block domain.LedgerBlock) error {
	if h := HashBlock(block); h != block.Hash {
		return fmt.Errorf("stored hash %.12s does not match content hash %.12s", block.Hash, h)
	}
	if block.Difficulty < 0 {
		return fmt.Errorf("negative difficulty %d", block.Difficulty)
	}
	if !strings.HasPrefix(block.Hash, strings.Repeat("0", block.Difficulty)) {
		return fmt.Errorf("hash %.12s misses difficulty %d", block.Hash, block.Difficulty)
	}
	return nil
}

// SignedSequence seals blocks with an HMAC-SHA256 over the canonical payload.
// The nonce is always 0; integrity comes from the key, not from work.
type SignedSequence struct {
	key []byte
}

func NewSignedSequence(key []byte) (SignedSequence, error) {
	if len(key) == 0 {
		return SignedSequence{}, errors.New("signed sequence: key must be non-empty")
	}
	return SignedSequence{key: key}, nil
}

func (s SignedSequence) Difficulty() int { return 0 }

func (s SignedSequence) sign(b domain.LedgerBlock) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(blockPayload(b))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s SignedSequence) Seal(ctx context.Context, block *domain.LedgerBlock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	block.Nonce = 0
	block.Difficulty = 0
	block.Hash = s.sign(*block)
	return nil
}

func (s SignedSequence) Verify(block domain.LedgerBlock) error {
	if !hmac.Equal([]byte(s.sign(block)), []byte(block.Hash)) {
		return errors.New("signature mismatch")
	}
	return nil
}
