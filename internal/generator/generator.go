package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/traffic-monitor/internal/store"
	"github.com/smukkama/traffic-monitor/internal/timer"
	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// Generator produces one batch of records per tick, one per monitored location
type Generator struct {
	writer    store.Writer
	locations []string
	rng       *rand.Rand
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger

	ticks    atomic.Int64
	inserted atomic.Int64
	failed   atomic.Int64
}

// Option configures a Generator
type Option func(*Generator)

// WithRand sets the random source; use a seeded source for reproducible runs
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) { g.rng = rng }
}

// WithClock sets the function used to stamp batches
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// New creates a generator that submits batches to writer
func New(writer store.Writer, locations []string, opts ...Option) (*Generator, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("at least one location is required")
	}

	g := &Generator{
		writer:    writer,
		locations: append([]string(nil), locations...),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Batch generates one record per location sharing a single timestamp and batch id
func (g *Generator) Batch() []traffic.Record {
	now := g.now()
	batchID := g.newID()

	batch := make([]traffic.Record, 0, len(g.locations))
	for _, location := range g.locations {
		vehicleCount := g.between(traffic.MinVehicleCount, traffic.MaxVehicleCount)
		level, band := traffic.Classify(vehicleCount)

		batch = append(batch, traffic.Record{
			BatchID:         batchID,
			Timestamp:       now,
			Location:        location,
			VehicleCount:    vehicleCount,
			AvgSpeed:        g.between(band.Min, band.Max),
			CongestionLevel: level,
			SensorID:        traffic.SensorID(location, g.between(100, 999)),
		})
	}
	return batch
}

// Tick generates a batch and inserts it. An insert failure loses this tick
// only; the caller keeps its schedule.
func (g *Generator) Tick(ctx context.Context) error {
	batch := g.Batch()
	g.ticks.Add(1)

	if err := g.writer.InsertBatch(ctx, batch); err != nil {
		g.failed.Add(1)
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	g.inserted.Add(int64(len(batch)))
	g.logger.Info("inserted batch", "records", len(batch), "batch_id", batch[0].BatchID)
	return nil
}

// Run ticks on the scheduler every period until ctx is cancelled
func (g *Generator) Run(ctx context.Context, sched *timer.Scheduler, period time.Duration) error {
	return sched.Run(ctx, "generator", func(ctx context.Context) time.Duration {
		if err := g.Tick(ctx); err != nil && ctx.Err() == nil {
			g.logger.Error("tick skipped", "err", err)
		}
		return period
	})
}

// Stats returns counters for the generator
func (g *Generator) Stats() Stats {
	return Stats{
		Ticks:           g.ticks.Load(),
		RecordsInserted: g.inserted.Load(),
		FailedTicks:     g.failed.Load(),
	}
}

// Stats contains generator counters
type Stats struct {
	Ticks           int64
	RecordsInserted int64
	FailedTicks     int64
}

// between draws uniformly from the inclusive range [lo, hi]
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}
