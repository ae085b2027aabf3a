// Package cadence turns cumulative step-count samples into a pace estimate and
// maps that pace onto a bounded playback rate.
package cadence

import "time"

// StepSample is one cumulative step-count reading from a pedometer.
// Steps is the running total since the source started counting, not a delta.
type StepSample struct {
	Steps int       `json:"steps"`
	At    time.Time `json:"at"`
}

// Estimate computes the instantaneous pace between two samples in steps per second.
//
// ok is false for degenerate pairs: an unchanged step count (watchers may fire
// with the same total) or a non-positive time difference. Callers must treat
// ok == false as "no update".
//
// A negative step difference (device counter reset) yields a negative pace;
// the Mapper clamps it to the minimum rate.
func Estimate(prev, next StepSample) (pace float64, ok bool) {
	diffSteps := next.Steps - prev.Steps
	if diffSteps == 0 {
		return 0, false
	}

	diffMs := float64(next.At.Sub(prev.At)) / float64(time.Millisecond)
	if diffMs <= 0 {
		return 0, false
	}

	return 1000 * float64(diffSteps) / diffMs, true
}
