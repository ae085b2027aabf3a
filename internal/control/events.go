package control

import (
	"time"

	"stridebeat/internal/cadence"
)

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// PedometerChecked is the one-time availability check at session start.
type PedometerChecked struct {
	Available bool
	At        time.Time
}

func (PedometerChecked) eventMarker() {}

// TrackLoaded reports a successful track load.
type TrackLoaded struct {
	At time.Time
}

func (TrackLoaded) eventMarker() {}

// TrackLoadFailed reports a failed track load. It is never retried.
type TrackLoadFailed struct {
	Err error
	At  time.Time
}

func (TrackLoadFailed) eventMarker() {}

// StepObserved carries one cumulative step sample.
type StepObserved struct {
	Sample cadence.StepSample
}

func (StepObserved) eventMarker() {}

// Tick is emitted by the session loop at the control period.
type Tick struct {
	Now time.Time
}

func (Tick) eventMarker() {}

// PlayerCommandFailed is emitted when executing a Command fails.
type PlayerCommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (PlayerCommandFailed) eventMarker() {}
