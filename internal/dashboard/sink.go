package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Sink renders frames
type Sink interface {
	Render(ctx context.Context, frame Frame) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, frame Frame) error

func (f SinkFunc) Render(ctx context.Context, frame Frame) error {
	return f(ctx, frame)
}

// MultiSink renders every frame to all sinks; one failing sink does not
// prevent the others from rendering.
type MultiSink []Sink

func (m MultiSink) Render(ctx context.Context, frame Frame) error {
	var errs []error
	for _, s := range m {
		if err := s.Render(ctx, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ConsoleSink writes a plain-text rendering of each frame
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink creates a console sink writing to w
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (c *ConsoleSink) Render(ctx context.Context, frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	if frame.Waiting {
		fmt.Fprintf(&b, "\n%s\n", frame.Message)
		if frame.Reason != "" {
			fmt.Fprintf(&b, "  (%s)\n", frame.Reason)
		}
		_, err := io.WriteString(c.w, b.String())
		return err
	}

	fmt.Fprintf(&b, "\n=== Live Status: %s ===\n", frame.Status)
	for _, m := range frame.Metrics {
		fmt.Fprintf(&b, "  %-22s %s\n", m.Label, m.Display)
	}

	fmt.Fprintf(&b, "\n  Current Congestion\n")
	for _, bar := range frame.Bars {
		fmt.Fprintf(&b, "  %-22s %3d km/h  %-8s %s\n",
			bar.Location, bar.AvgSpeed, bar.CongestionLevel, strings.Repeat("#", max(0, bar.AvgSpeed/5)))
	}
	if len(frame.Missing) > 0 {
		fmt.Fprintf(&b, "  no report this tick: %s\n", strings.Join(frame.Missing, ", "))
	}

	fmt.Fprintf(&b, "\n  Vehicle Flow (window of %d records)\n", frame.WindowSize)
	for _, s := range frame.Flow {
		last := s.Points[len(s.Points)-1]
		fmt.Fprintf(&b, "  %-22s %d points, latest %.1f vehicles\n", s.Location, len(s.Points), last.VehicleCount)
	}

	fmt.Fprintf(&b, "\n  %-22s %-14s %5s %5s %-8s\n", "location", "sensor", "count", "speed", "level")
	for _, r := range frame.Table {
		fmt.Fprintf(&b, "  %-22s %-14s %5d %5d %-8s\n",
			r.Location, r.SensorID, r.VehicleCount, r.AvgSpeed, r.CongestionLevel)
	}

	_, err := io.WriteString(c.w, b.String())
	return err
}
