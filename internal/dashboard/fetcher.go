package dashboard

import (
	"context"
	"fmt"

	"github.com/smukkama/traffic-monitor/internal/store"
	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// DefaultWindowSize is the number of records fetched per refresh
const DefaultWindowSize = 500

// Fetcher retrieves the most recent window of records
type Fetcher struct {
	reader store.Reader
	size   int
}

// NewFetcher creates a fetcher returning at most size records per call
func NewFetcher(reader store.Reader, size int) *Fetcher {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Fetcher{reader: reader, size: size}
}

// Fetch returns up to the window size of records, newest first. An empty
// store yields an empty window and no error.
func (f *Fetcher) Fetch(ctx context.Context) ([]traffic.Record, error) {
	records, err := f.reader.QueryRecent(ctx, f.size)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch window: %w", err)
	}
	if records == nil {
		records = []traffic.Record{}
	}
	if len(records) > f.size {
		records = records[:f.size]
	}
	return records, nil
}

// Size returns the configured window size
func (f *Fetcher) Size() int {
	return f.size
}
