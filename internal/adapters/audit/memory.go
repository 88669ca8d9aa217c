package audit

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"slices"
	"sync"
)

type MemoryLog struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (m *MemoryLog) Append(ctx context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryLog) Entries() []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}
