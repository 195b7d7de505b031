package traffic

import (
	"fmt"
	"strings"
	"time"
)

// Record is one observation for one monitored location at one instant
type Record struct {
	BatchID         string          `json:"batch_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Location        string          `json:"location"`
	VehicleCount    int             `json:"vehicle_count"`
	AvgSpeed        int             `json:"avg_speed"`
	CongestionLevel CongestionLevel `json:"congestion_level"`
	SensorID        string          `json:"sensor_id"`
}

// DefaultLocations are the junctions monitored when none are configured
var DefaultLocations = []string{
	"Main St & 1st Ave",
	"Broadway & 42nd",
	"Queens Blvd Exit 5",
}

// SensorID builds the display identifier for a sensor at location
func SensorID(location string, suffix int) string {
	prefix := []rune(location)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return fmt.Sprintf("Sens-%s-%d", strings.ToUpper(string(prefix)), suffix)
}

// Validate checks that the record's level and speed agree with its vehicle count
func (r *Record) Validate() error {
	if r.Location == "" {
		return fmt.Errorf("location is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if r.VehicleCount < MinVehicleCount || r.VehicleCount > MaxVehicleCount {
		return fmt.Errorf("vehicle count %d out of range [%d, %d]", r.VehicleCount, MinVehicleCount, MaxVehicleCount)
	}

	level, band := Classify(r.VehicleCount)
	if r.CongestionLevel != level {
		return fmt.Errorf("congestion level %q does not match vehicle count %d (want %q)",
			r.CongestionLevel, r.VehicleCount, level)
	}
	if !band.Contains(r.AvgSpeed) {
		return fmt.Errorf("speed %d km/h outside %s band [%d, %d]", r.AvgSpeed, level, band.Min, band.Max)
	}
	return nil
}
