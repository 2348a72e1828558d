package diary

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is a process-local Ledger. A restart forgets the last digest.
type MemoryLedger struct {
	mu   sync.Mutex
	last time.Time
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

// LastDigestSent implements Ledger.
func (m *MemoryLedger) LastDigestSent(context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, !m.last.IsZero(), nil
}

// RecordDigestSent implements Ledger.
func (m *MemoryLedger) RecordDigestSent(_ context.Context, sentAt time.Time, _ string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = sentAt
	return nil
}
