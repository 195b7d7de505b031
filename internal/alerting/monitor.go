package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/smukkama/traffic-monitor/internal/dashboard"
	"github.com/smukkama/traffic-monitor/internal/protocol"
	"github.com/smukkama/traffic-monitor/internal/queue"
	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// DefaultHighDuration is how long a location must stay High before alarming
const DefaultHighDuration = 30 * time.Second

// Monitor watches each rendered snapshot for sustained High congestion.
// Durations are measured on record timestamps, so re-rendering the same tick
// does not advance a pending breach.
type Monitor struct {
	states       *StateStore
	alerts       queue.Publisher
	highDuration time.Duration
	logger       *slog.Logger

	triggered atomic.Int64
	cleared   atomic.Int64
}

// NewMonitor creates a monitor publishing alerts to alerts
func NewMonitor(states *StateStore, alerts queue.Publisher, highDuration time.Duration, logger *slog.Logger) *Monitor {
	if highDuration < 0 {
		highDuration = DefaultHighDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		states:       states,
		alerts:       alerts,
		highDuration: highDuration,
		logger:       logger,
	}
}

// Render evaluates every row of the frame's snapshot table
func (m *Monitor) Render(ctx context.Context, frame dashboard.Frame) error {
	if frame.Waiting {
		return nil
	}

	var errs []error
	for _, rec := range frame.Table {
		if err := m.Evaluate(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.Location, err))
		}
	}
	return errors.Join(errs...)
}

// Evaluate advances the state machine of rec's location
func (m *Monitor) Evaluate(ctx context.Context, rec traffic.Record) error {
	state, err := m.states.Get(ctx, rec.Location)
	if err != nil {
		return err
	}

	if rec.CongestionLevel == traffic.CongestionHigh {
		return m.handleHigh(ctx, rec, state)
	}
	return m.handleRelief(ctx, rec, state)
}

func (m *Monitor) handleHigh(ctx context.Context, rec traffic.Record, state *State) error {
	switch state.Status {
	case StatusClear:
		next := &State{
			Status:          StatusPending,
			BreachStartTime: rec.Timestamp,
			LastChecked:     rec.Timestamp,
			SensorID:        rec.SensorID,
			VehicleCount:    rec.VehicleCount,
			AvgSpeed:        rec.AvgSpeed,
		}
		return m.states.Set(ctx, rec.Location, next)

	case StatusPending:
		if rec.Timestamp.Sub(state.BreachStartTime) >= m.highDuration {
			return m.trigger(ctx, rec, state)
		}
		state.LastChecked = rec.Timestamp
		state.VehicleCount = rec.VehicleCount
		state.AvgSpeed = rec.AvgSpeed
		return m.states.Set(ctx, rec.Location, state)

	case StatusAlarming:
		state.LastChecked = rec.Timestamp
		return m.states.Set(ctx, rec.Location, state)
	}

	return nil
}

func (m *Monitor) handleRelief(ctx context.Context, rec traffic.Record, state *State) error {
	switch state.Status {
	case StatusPending:
		return m.states.Delete(ctx, rec.Location)

	case StatusAlarming:
		return m.clear(ctx, rec, state)
	}

	return nil
}

func (m *Monitor) trigger(ctx context.Context, rec traffic.Record, state *State) error {
	state.Status = StatusAlarming
	state.LastChecked = rec.Timestamp
	state.VehicleCount = rec.VehicleCount
	state.AvgSpeed = rec.AvgSpeed
	if err := m.states.Set(ctx, rec.Location, state); err != nil {
		return err
	}

	m.triggered.Add(1)
	m.logger.Warn("congestion alarm triggered",
		"location", rec.Location, "vehicles", rec.VehicleCount, "speed", rec.AvgSpeed,
		"since", state.BreachStartTime)

	return m.publish(ctx, &protocol.CongestionAlert{
		Type:         protocol.AlertTypeTriggered,
		Location:     rec.Location,
		SensorID:     rec.SensorID,
		VehicleCount: rec.VehicleCount,
		AvgSpeed:     rec.AvgSpeed,
		Duration:     rec.Timestamp.Sub(state.BreachStartTime).Seconds(),
		StartTime:    state.BreachStartTime,
		ObservedAt:   rec.Timestamp,
	})
}

func (m *Monitor) clear(ctx context.Context, rec traffic.Record, state *State) error {
	if err := m.states.Delete(ctx, rec.Location); err != nil {
		return err
	}

	m.cleared.Add(1)
	m.logger.Info("congestion alarm cleared", "location", rec.Location, "level", rec.CongestionLevel)

	return m.publish(ctx, &protocol.CongestionAlert{
		Type:         protocol.AlertTypeCleared,
		Location:     rec.Location,
		SensorID:     rec.SensorID,
		VehicleCount: rec.VehicleCount,
		AvgSpeed:     rec.AvgSpeed,
		Duration:     rec.Timestamp.Sub(state.BreachStartTime).Seconds(),
		StartTime:    state.BreachStartTime,
		ObservedAt:   rec.Timestamp,
	})
}

func (m *Monitor) publish(ctx context.Context, alert *protocol.CongestionAlert) error {
	data, err := protocol.EncodeCongestionAlert(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	return m.alerts.Publish(ctx, alert.Location, data)
}

// Stats returns alert counters
func (m *Monitor) Stats() Stats {
	return Stats{
		Triggered: m.triggered.Load(),
		Cleared:   m.cleared.Load(),
	}
}

// Stats contains alert counters
type Stats struct {
	Triggered int64
	Cleared   int64
}
