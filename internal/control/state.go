package control

import "time"

// Phase is the lifecycle phase of a controller.
type Phase int

const (
	// PhaseIdle: the pedometer has not been confirmed available.
	PhaseIdle Phase = iota
	// PhasePriming: pedometer available, track loading.
	PhasePriming
	// PhaseActive: receiving step updates and ticking.
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePriming:
		return "priming"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// State is the controller memory for one session.
//
// It is a value: Reduce takes a State and returns the next one. It is intended
// to be held only by the session goroutine (single-owner).
type State struct {
	Phase Phase

	// Step bookkeeping.
	LastSteps    int
	LastUpdateAt time.Time
	StartAt      time.Time
	NumUpdates   int
	AvgInterval  time.Duration

	// Ratio is the last pace estimate in steps per second.
	Ratio float64

	CurrentRate float64
	DesiredRate float64

	// IsPlaying is the has-started guard. It flips to true once and never back.
	IsPlaying bool

	// AudioReady is false when the track failed to load; playback commands
	// are suppressed for the rest of the session.
	AudioReady bool

	// SensorUnavailable marks an inert session.
	SensorUnavailable bool

	// PlayerErrors counts failed player commands.
	PlayerErrors int
}

// Stale reports whether no step update has arrived within the staleness
// threshold derived from the average update interval.
func (s State) Stale(now time.Time, factor float64) bool {
	if s.NumUpdates == 0 {
		return false
	}
	threshold := time.Duration(float64(s.AvgInterval) * factor)
	return now.Sub(s.LastUpdateAt) > threshold
}
