package notification

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/traffic-monitor/internal/protocol"
	"github.com/smukkama/traffic-monitor/internal/queue"
)

// AlertSender delivers a single alert
type AlertSender interface {
	SendAlert(alert *protocol.CongestionAlert) error
}

// Default retry policy for one alert
const (
	DefaultSendAttempts = 3
	DefaultSendBackoff  = 2 * time.Second
)

// Dispatcher consumes congestion alerts and hands each to a sender.
// A send is retried with doubling backoff. After the last attempt the alert
// is dropped and its offset committed, since a later commit on the group
// would move past it anyway.
type Dispatcher struct {
	source       queue.MessageSource
	sender       AlertSender
	attempts     int
	sendBackoff  time.Duration
	retryBackoff time.Duration
	logger       *slog.Logger

	sent      atomic.Int64
	malformed atomic.Int64
	dropped   atomic.Int64
}

// DispatchStats counts handled alerts
type DispatchStats struct {
	Sent      int64
	Malformed int64
	Dropped   int64
}

// NewDispatcher creates a dispatcher from source to sender
func NewDispatcher(source queue.MessageSource, sender AlertSender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		source:       source,
		sender:       sender,
		attempts:     DefaultSendAttempts,
		sendBackoff:  DefaultSendBackoff,
		retryBackoff: time.Second,
		logger:       logger,
	}
}

// Run dispatches alerts until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, err := d.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("consume failed", "err", err)
			if err := sleep(ctx, d.retryBackoff); err != nil {
				return err
			}
			continue
		}

		if err := d.handle(ctx, msg); err != nil {
			// cancelled mid-retry; leave the offset for the next run
			return err
		}

		if err := d.source.Commit(ctx, msg); err != nil {
			d.logger.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// handle returns an error only when ctx ends while retrying
func (d *Dispatcher) handle(ctx context.Context, msg kafka.Message) error {
	alert, err := protocol.DecodeCongestionAlert(msg.Value)
	if err != nil {
		d.malformed.Add(1)
		d.logger.Warn("malformed alert skipped", "offset", msg.Offset, "err", err)
		return nil
	}

	backoff := d.sendBackoff
	for attempt := 1; ; attempt++ {
		err := d.sender.SendAlert(alert)
		if err == nil {
			d.sent.Add(1)
			return nil
		}
		if attempt >= d.attempts {
			d.dropped.Add(1)
			d.logger.Error("alert dropped",
				"location", alert.Location, "type", alert.Type, "attempts", attempt, "err", err)
			return nil
		}
		d.logger.Warn("send failed, retrying", "location", alert.Location, "attempt", attempt, "err", err)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

// Stats returns dispatch counters
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Sent:      d.sent.Load(),
		Malformed: d.malformed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
