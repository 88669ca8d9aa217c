// Package audit stores the append-only trail of status and ledger events.
package audit

import (
	"bufio"
	"context"
	"delivery-dispatch-service/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLLog appends one JSON object per line to a file.
type JSONLLog struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// NewJSONLLog creates or opens path for appending, creating parent directories.
func NewJSONLLog(path string) (*JSONLLog, error) {
	if path == "" {
		return nil, errors.New("audit log: path must be non-empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit log: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit log: open %q: %w", path, err)
	}
	return &JSONLLog{path: path, f: f}, nil
}

func (l *JSONLLog) Append(ctx context.Context, e domain.AuditEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit log: encode: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(data); err != nil {
		return fmt.Errorf("audit log: write: %w", err)
	}
	return nil
}

// ByOrder scans the whole file for entries about orderID.
func (l *JSONLLog) ByOrder(ctx context.Context, orderID int64) ([]domain.AuditEntry, error) {
	l.mu.Lock()
	_ = l.f.Sync()
	l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("audit log: open for read: %w", err)
	}
	defer f.Close()

	var out []domain.AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e domain.AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit log: scan: %w", err)
	}
	return out, nil
}

func (l *JSONLLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
