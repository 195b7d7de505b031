package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/traffic-monitor/internal/protocol"
	"github.com/smukkama/traffic-monitor/internal/store"
)

// MessageSource is the part of Consumer the relay uses
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// Relay consumes telemetry batches from Kafka and inserts each into a store.
// Every message is committed once handled, including ones that failed: a lost
// tick is tolerated and the next tick replaces it.
type Relay struct {
	source       MessageSource
	writer       store.Writer
	retryBackoff time.Duration
	logger       *slog.Logger

	inserted atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
}

// NewRelay creates a relay from source into writer
func NewRelay(source MessageSource, writer store.Writer, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		source:       source,
		writer:       writer,
		retryBackoff: time.Second,
		logger:       logger,
	}
}

// Run relays messages until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	for {
		msg, err := r.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("consume failed", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryBackoff):
			}
			continue
		}

		if err := r.handle(ctx, msg); err != nil {
			r.logger.Warn("batch dropped", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}

		if err := r.source.Commit(ctx, msg); err != nil {
			r.logger.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

func (r *Relay) handle(ctx context.Context, msg kafka.Message) error {
	batch, err := protocol.DecodeTelemetryBatch(msg.Value)
	if err != nil {
		r.rejected.Add(1)
		return fmt.Errorf("failed to decode batch: %w", err)
	}
	if err := batch.Validate(); err != nil {
		r.rejected.Add(1)
		return fmt.Errorf("invalid batch %s: %w", batch.BatchID, err)
	}

	if err := r.writer.InsertBatch(ctx, batch.Records); err != nil {
		r.failed.Add(1)
		return fmt.Errorf("failed to insert batch %s: %w", batch.BatchID, err)
	}

	r.inserted.Add(1)
	r.logger.Info("relayed batch", "batch_id", batch.BatchID, "records", len(batch.Records))
	return nil
}

// Stats returns relay counters
func (r *Relay) Stats() RelayStats {
	return RelayStats{
		BatchesInserted: r.inserted.Load(),
		BatchesRejected: r.rejected.Load(),
		BatchesFailed:   r.failed.Load(),
	}
}

// RelayStats contains relay counters
type RelayStats struct {
	BatchesInserted int64
	BatchesRejected int64
	BatchesFailed   int64
}
