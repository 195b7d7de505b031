package dashboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/smukkama/traffic-monitor/internal/aggregation"
	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// WaitingMessage is shown while no data is available
const WaitingMessage = "Waiting for data... Run the simulator!"

// DefaultSpeedThreshold is the network speed (km/h) above which the speed
// metric is shown with normal colouring
const DefaultSpeedThreshold = 40.0

// Delta colour hints, as understood by metric widgets
const (
	DeltaNormal  = "normal"
	DeltaInverse = "inverse"
)

// LevelColors maps congestion levels to chart colours
var LevelColors = map[traffic.CongestionLevel]string{
	traffic.CongestionLow:      "green",
	traffic.CongestionModerate: "orange",
	traffic.CongestionHigh:     "red",
}

// Frame is one render-ready view of the network
type Frame struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	Waiting         bool             `json:"waiting"`
	Message         string           `json:"message,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	Status          string           `json:"status,omitempty"`
	LatestTimestamp time.Time        `json:"latest_timestamp"`
	Metrics         []Metric         `json:"metrics,omitempty"`
	Flow            []Series         `json:"flow,omitempty"`
	Bars            []Bar            `json:"bars,omitempty"`
	Table           []traffic.Record `json:"table,omitempty"`
	Missing         []string         `json:"missing,omitempty"`
	WindowSize      int              `json:"window_size"`
}

// Metric is a KPI with display hints
type Metric struct {
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
	Display    string  `json:"display"`
	Unit       string  `json:"unit,omitempty"`
	DeltaColor string  `json:"delta_color"`
}

// Series is one location's line in the vehicle flow chart
type Series struct {
	Location string        `json:"location"`
	Points   []SeriesPoint `json:"points"`
}

// SeriesPoint is a single time-bucketed datapoint
type SeriesPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	VehicleCount float64   `json:"vehicle_count"`
}

// Bar is one location's bar in the congestion chart
type Bar struct {
	Location        string                  `json:"location"`
	AvgSpeed        int                     `json:"avg_speed"`
	CongestionLevel traffic.CongestionLevel `json:"congestion_level"`
	Color           string                  `json:"color"`
}

// FrameOptions controls frame formatting
type FrameOptions struct {
	SpeedThreshold float64
	Now            func() time.Time
}

func (o FrameOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// BuildFrame turns an aggregation result into a frame
func BuildFrame(result aggregation.Result, opts FrameOptions) Frame {
	if result.Waiting || result.KPIs == nil {
		return WaitingFrame("", opts)
	}

	threshold := opts.SpeedThreshold
	if threshold <= 0 {
		threshold = DefaultSpeedThreshold
	}

	kpis := result.KPIs
	speedColor := DeltaInverse
	if kpis.AvgSpeedNow > threshold {
		speedColor = DeltaNormal
	}

	frame := Frame{
		GeneratedAt:     opts.now(),
		Status:          result.LatestTimestamp.Format("15:04:05"),
		LatestTimestamp: result.LatestTimestamp,
		Metrics: []Metric{
			{
				Key:        "avg_speed_now",
				Label:      "Avg Network Speed",
				Value:      kpis.AvgSpeedNow,
				Display:    fmt.Sprintf("%.1f km/h", kpis.AvgSpeedNow),
				Unit:       "km/h",
				DeltaColor: speedColor,
			},
			{
				Key:        "total_cars_now",
				Label:      "Total Vehicles (Live)",
				Value:      float64(kpis.TotalCarsNow),
				Display:    fmt.Sprintf("%d", kpis.TotalCarsNow),
				DeltaColor: DeltaNormal,
			},
			{
				Key:        "congestion_rate",
				Label:      "Congestion Rate",
				Value:      kpis.CongestionRate,
				Display:    fmt.Sprintf("%.0f%%", kpis.CongestionRate),
				Unit:       "%",
				DeltaColor: DeltaInverse,
			},
		},
		Flow:       groupSeries(result.Flow),
		Table:      result.Snapshot,
		Missing:    result.Missing,
		WindowSize: result.WindowSize,
	}

	for _, r := range result.Snapshot {
		frame.Bars = append(frame.Bars, Bar{
			Location:        r.Location,
			AvgSpeed:        r.AvgSpeed,
			CongestionLevel: r.CongestionLevel,
			Color:           LevelColors[r.CongestionLevel],
		})
	}

	return frame
}

// WaitingFrame is rendered when there is nothing to show. reason is empty for
// an empty store and carries the failure otherwise.
func WaitingFrame(reason string, opts FrameOptions) Frame {
	return Frame{
		GeneratedAt: opts.now(),
		Waiting:     true,
		Message:     WaitingMessage,
		Reason:      reason,
	}
}

func groupSeries(points []aggregation.FlowPoint) []Series {
	byLocation := make(map[string][]SeriesPoint)
	for _, p := range points {
		byLocation[p.Location] = append(byLocation[p.Location], SeriesPoint{
			Timestamp:    p.Timestamp,
			VehicleCount: p.VehicleCount,
		})
	}

	locations := make([]string, 0, len(byLocation))
	for loc := range byLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	series := make([]Series, 0, len(locations))
	for _, loc := range locations {
		series = append(series, Series{Location: loc, Points: byLocation[loc]})
	}
	return series
}
