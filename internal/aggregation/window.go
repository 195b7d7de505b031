package aggregation

import (
	"sort"
	"time"

	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// KPIs are the live network metrics computed over the latest snapshot
type KPIs struct {
	AvgSpeedNow    float64 `json:"avg_speed_now"`
	TotalCarsNow   int     `json:"total_cars_now"`
	CongestionRate float64 `json:"congestion_rate"`
}

// FlowPoint is the mean vehicle count for one location at one instant
type FlowPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	Location     string    `json:"location"`
	VehicleCount float64   `json:"vehicle_count"`
	Samples      int       `json:"samples"`
}

// Result is everything one refresh cycle renders
type Result struct {
	// Waiting is set when the window holds no rows; KPIs is nil then
	Waiting         bool             `json:"waiting"`
	LatestTimestamp time.Time        `json:"latest_timestamp"`
	KPIs            *KPIs            `json:"kpis,omitempty"`
	Snapshot        []traffic.Record `json:"snapshot"`
	Flow            []FlowPoint      `json:"flow"`
	Missing         []string         `json:"missing,omitempty"`
	WindowSize      int              `json:"window_size"`
}

// Aggregator turns a window of records into KPIs, a flow series and the
// latest snapshot. It holds configuration only; Aggregate is a pure function
// of its input.
type Aggregator struct {
	// Locations is the expected location set, used to report partial snapshots
	Locations []string
	// Bucket truncates timestamps before flow grouping; zero groups by exact timestamp
	Bucket time.Duration
}

// Aggregate computes the outputs for one window
func (a Aggregator) Aggregate(window []traffic.Record) Result {
	snapshot, latest := LatestSnapshot(window)

	result := Result{
		LatestTimestamp: latest,
		Snapshot:        snapshot,
		Flow:            FlowSeries(window, a.Bucket),
		WindowSize:      len(window),
	}

	if len(snapshot) == 0 {
		result.Waiting = true
		return result
	}

	kpis := ComputeKPIs(snapshot)
	result.KPIs = &kpis
	result.Missing = missingLocations(a.Locations, snapshot)
	return result
}

// LatestSnapshot returns the rows at the window's maximum timestamp, sorted by
// location, and that timestamp.
func LatestSnapshot(window []traffic.Record) ([]traffic.Record, time.Time) {
	if len(window) == 0 {
		return []traffic.Record{}, time.Time{}
	}

	latest := window[0].Timestamp
	for _, r := range window[1:] {
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}

	snapshot := make([]traffic.Record, 0)
	for _, r := range window {
		if r.Timestamp.Equal(latest) {
			snapshot = append(snapshot, r)
		}
	}
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].Location < snapshot[j].Location
	})

	return snapshot, latest
}

// ComputeKPIs derives the live metrics. The snapshot must be non-empty.
func ComputeKPIs(snapshot []traffic.Record) KPIs {
	var speedSum float64
	var cars, high int
	for _, r := range snapshot {
		speedSum += float64(r.AvgSpeed)
		cars += r.VehicleCount
		if r.CongestionLevel == traffic.CongestionHigh {
			high++
		}
	}

	n := float64(len(snapshot))
	return KPIs{
		AvgSpeedNow:    speedSum / n,
		TotalCarsNow:   cars,
		CongestionRate: float64(high) / n * 100,
	}
}

type flowKey struct {
	ts       int64
	location string
}

// FlowSeries groups the window by (timestamp, location) and averages vehicle
// counts per group. Rows are ordered by timestamp, then location.
func FlowSeries(window []traffic.Record, bucket time.Duration) []FlowPoint {
	type acc struct {
		ts    time.Time
		sum   int
		count int
	}

	groups := make(map[flowKey]*acc)
	for _, r := range window {
		ts := r.Timestamp
		if bucket > 0 {
			ts = ts.Truncate(bucket)
		}
		key := flowKey{ts: ts.UnixNano(), location: r.Location}

		g, ok := groups[key]
		if !ok {
			g = &acc{ts: ts}
			groups[key] = g
		}
		g.sum += r.VehicleCount
		g.count++
	}

	points := make([]FlowPoint, 0, len(groups))
	for key, g := range groups {
		points = append(points, FlowPoint{
			Timestamp:    g.ts,
			Location:     key.location,
			VehicleCount: float64(g.sum) / float64(g.count),
			Samples:      g.count,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if !points[i].Timestamp.Equal(points[j].Timestamp) {
			return points[i].Timestamp.Before(points[j].Timestamp)
		}
		return points[i].Location < points[j].Location
	})
	return points
}

func missingLocations(expected []string, snapshot []traffic.Record) []string {
	if len(expected) == 0 {
		return nil
	}

	present := make(map[string]bool, len(snapshot))
	for _, r := range snapshot {
		present[r.Location] = true
	}

	var missing []string
	for _, loc := range expected {
		if !present[loc] {
			missing = append(missing, loc)
		}
	}
	return missing
}
