package queue

import (
	"context"
	"fmt"

	"github.com/smukkama/traffic-monitor/internal/dashboard"
	"github.com/smukkama/traffic-monitor/internal/protocol"
	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// Publisher sends keyed messages
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// BatchPublisher lets the generator write ticks to Kafka instead of a store.
// Each tick becomes one message keyed by its batch id.
type BatchPublisher struct {
	pub Publisher
}

// NewBatchPublisher creates a batch publisher
func NewBatchPublisher(pub Publisher) *BatchPublisher {
	return &BatchPublisher{pub: pub}
}

// InsertBatch publishes the batch as one message
func (b *BatchPublisher) InsertBatch(ctx context.Context, records []traffic.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := protocol.NewTelemetryBatch(records)
	data, err := protocol.EncodeTelemetryBatch(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	return b.pub.Publish(ctx, batch.BatchID, data)
}

// FrameSink publishes rendered frames for downstream displays
type FrameSink struct {
	pub Publisher
	key string
}

// NewFrameSink creates a frame sink publishing under key
func NewFrameSink(pub Publisher, key string) *FrameSink {
	return &FrameSink{pub: pub, key: key}
}

func (f *FrameSink) Render(ctx context.Context, frame dashboard.Frame) error {
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := f.pub.Publish(ctx, f.key, data); err != nil {
		return fmt.Errorf("failed to publish frame: %w", err)
	}
	return nil
}
