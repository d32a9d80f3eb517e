package ledger

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds the in-memory backend. Oldest records are
// discarded once the ring is full.
const DefaultMemoryCapacity = 10000

// MemoryStorage keeps records in a fixed-size in-memory ring. Intended for
// development and tests; nothing survives a restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*Record
	cap     int
}

// NewMemoryStorage creates an in-memory backend holding at most capacity
// records. Zero or negative capacity takes the default.
func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStorage{cap: capacity}
}

func (m *MemoryStorage) Store(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, rec)
	if len(m.records) > m.cap {
		m.records = m.records[len(m.records)-m.cap:]
	}
	return nil
}

func (m *MemoryStorage) List(_ context.Context, q Query) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if q.Kind != "" && rec.Kind != q.Kind {
			continue
		}
		if !q.Since.IsZero() && rec.RecordedAt.Before(q.Since) {
			continue
		}
		out = append(out, rec)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStorage) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	var deleted int64
	for _, rec := range m.records {
		if rec.RecordedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return deleted, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
