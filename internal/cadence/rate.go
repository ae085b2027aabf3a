package cadence

// Default rate bounds and the pace treated as full speed (steps per second).
const (
	DefaultMinRate  = 0.6
	DefaultMaxRate  = 1.0
	DefaultFullPace = 3.0
)

// Mapper maps a pace to a playback rate in [MinRate, MaxRate].
type Mapper struct {
	MinRate  float64
	MaxRate  float64
	FullPace float64
}

// DefaultMapper returns the stock 0.6..1.0 mapping with 3 steps/s as full pace.
func DefaultMapper() Mapper {
	return Mapper{
		MinRate:  DefaultMinRate,
		MaxRate:  DefaultMaxRate,
		FullPace: DefaultFullPace,
	}
}

// Normalize returns pace/FullPace clamped to [0, 1].
func (m Mapper) Normalize(pace float64) float64 {
	if m.FullPace <= 0 {
		return 0
	}
	r := pace / m.FullPace
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Map returns the desired playback rate for pace.
func (m Mapper) Map(pace float64) float64 {
	return m.MinRate + (m.MaxRate-m.MinRate)*m.Normalize(pace)
}
