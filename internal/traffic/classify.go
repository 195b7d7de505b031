package traffic

// CongestionLevel is the three-valued classification derived from vehicle count
type CongestionLevel string

const (
	CongestionLow      CongestionLevel = "Low"
	CongestionModerate CongestionLevel = "Moderate"
	CongestionHigh     CongestionLevel = "High"
)

// Vehicle count range drawn per sampling interval
const (
	MinVehicleCount = 5
	MaxVehicleCount = 150
)

// Counts above these thresholds move a location into the next level
const (
	moderateAbove = 50
	highAbove     = 100
)

// SpeedBand is an inclusive km/h range
type SpeedBand struct {
	Min int
	Max int
}

// Contains reports whether speed falls inside the band
func (b SpeedBand) Contains(speed int) bool {
	return speed >= b.Min && speed <= b.Max
}

var bands = map[CongestionLevel]SpeedBand{
	CongestionHigh:     {Min: 5, Max: 25},
	CongestionModerate: {Min: 25, Max: 50},
	CongestionLow:      {Min: 50, Max: 80},
}

// Classify maps a vehicle count to its congestion level and the speed band
// a record at that level must fall in.
func Classify(vehicleCount int) (CongestionLevel, SpeedBand) {
	switch {
	case vehicleCount > highAbove:
		return CongestionHigh, bands[CongestionHigh]
	case vehicleCount > moderateAbove:
		return CongestionModerate, bands[CongestionModerate]
	default:
		return CongestionLow, bands[CongestionLow]
	}
}

// BandFor returns the speed band for a level
func BandFor(level CongestionLevel) (SpeedBand, bool) {
	b, ok := bands[level]
	return b, ok
}
