package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-process ledger used by tests and dry runs.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]time.Time)}
}

func (m *MemoryLedger) Has(ctx context.Context, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[Normalize(title)]
	return ok, nil
}

func (m *MemoryLedger) Record(ctx context.Context, title string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[Normalize(title)] = publishedAt
	return nil
}

func (m *MemoryLedger) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]time.Time)
	return nil
}

func (m *MemoryLedger) Close() error {
	return nil
}

// Len reports the number of recorded titles.
func (m *MemoryLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
