package store

import (
	"context"

	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// Writer accepts one tick's batch of records
type Writer interface {
	InsertBatch(ctx context.Context, records []traffic.Record) error
}

// Reader returns the most recent records ordered by descending timestamp
type Reader interface {
	QueryRecent(ctx context.Context, limit int) ([]traffic.Record, error)
}

// Store is an append-only, timestamp-queryable record sink
type Store interface {
	Writer
	Reader
	Close() error
}
