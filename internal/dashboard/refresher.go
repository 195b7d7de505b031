package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/smukkama/traffic-monitor/internal/aggregation"
	"github.com/smukkama/traffic-monitor/internal/timer"
)

// Default refresh cadence
const (
	DefaultRefreshInterval = 3 * time.Second
	DefaultWaitInterval    = 2 * time.Second
)

// RefresherConfig configures a refresh loop
type RefresherConfig struct {
	RefreshInterval time.Duration
	WaitInterval    time.Duration
	Frame           FrameOptions
	Logger          *slog.Logger
}

// Refresher runs fetch, aggregate and render as one sequential cycle
type Refresher struct {
	fetcher    *Fetcher
	aggregator aggregation.Aggregator
	sink       Sink
	cfg        RefresherConfig
	logger     *slog.Logger
}

// NewRefresher creates a refresh loop rendering to sink
func NewRefresher(fetcher *Fetcher, aggregator aggregation.Aggregator, sink Sink, cfg RefresherConfig) *Refresher {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = DefaultWaitInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		fetcher:    fetcher,
		aggregator: aggregator,
		sink:       sink,
		cfg:        cfg,
		logger:     logger,
	}
}

// Cycle performs one refresh and returns the rendered frame. A failed fetch
// is rendered as a waiting frame; a failed render is logged. Neither ends the loop.
func (r *Refresher) Cycle(ctx context.Context) Frame {
	var frame Frame

	window, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.logger.Warn("store unavailable", "err", err)
		frame = WaitingFrame("store unavailable: "+err.Error(), r.cfg.Frame)
	} else {
		frame = BuildFrame(r.aggregator.Aggregate(window), r.cfg.Frame)
	}

	if err := r.sink.Render(ctx, frame); err != nil {
		r.logger.Error("render failed", "err", err)
	}
	return frame
}

// Run repeats cycles until ctx is cancelled. After a data frame it waits the
// refresh interval, after a waiting frame the wait interval.
func (r *Refresher) Run(ctx context.Context, sched *timer.Scheduler) error {
	return sched.Run(ctx, "refresh", func(ctx context.Context) time.Duration {
		if frame := r.Cycle(ctx); frame.Waiting {
			return r.cfg.WaitInterval
		}
		return r.cfg.RefreshInterval
	})
}
