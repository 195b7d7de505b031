package store

import (
	"context"
	"sort"
	"sync"

	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// Memory keeps records in process memory. Used when both loops share a process.
type Memory struct {
	mu      sync.RWMutex
	records []traffic.Record
	maxLen  int
	closed  bool
}

// NewMemory creates an in-memory store retaining at most maxLen records (0 = unbounded)
func NewMemory(maxLen int) *Memory {
	return &Memory{maxLen: maxLen}
}

// InsertBatch appends the batch
func (m *Memory) InsertBatch(ctx context.Context, records []traffic.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.records = append(m.records, records...)
	if m.maxLen > 0 && len(m.records) > m.maxLen {
		m.records = append([]traffic.Record(nil), m.records[len(m.records)-m.maxLen:]...)
	}
	return nil
}

// QueryRecent returns up to limit records, newest first
func (m *Memory) QueryRecent(ctx context.Context, limit int) ([]traffic.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return []traffic.Record{}, nil
	}

	// Newest insertions first so equal timestamps keep the latest batch on top
	out := make([]traffic.Record, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0; i-- {
		out = append(out, m.records[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close marks the store closed; later calls fail with ErrClosed
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var (
	ErrClosed = &StoreError{"store is closed"}
)

// StoreError represents a store error
type StoreError struct {
	msg string
}

func (e *StoreError) Error() string {
	return e.msg
}
