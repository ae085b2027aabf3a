// Package control implements the cadence-to-playback-rate controller as a pure
// reducer.
//
// The reducer performs no I/O. It computes the next State plus Commands for
// the player; the session loop executes those Commands and feeds failures back
// as Events.
package control

import (
	"time"

	"stridebeat/internal/cadence"
)

// TransitionKind identifies what produced a Transition.
type TransitionKind int

const (
	TransitionStep TransitionKind = iota
	TransitionTick
)

// Transition describes the rate movement caused by one reduction. It is the
// input of the feedback text rules.
type Transition struct {
	Kind TransitionKind

	OldRate float64
	NewRate float64

	// Decaying is set when the desired rate was decayed this tick.
	Decaying bool
	// Floored is set when that decay was clamped at MinIdleRate.
	Floored bool

	// Started is set on the reduction that started playback.
	Started bool
}

// Result is the output of Reduce.
type Result struct {
	State    State
	Commands []Command

	// Transition is nil when the event did not touch the rates.
	Transition *Transition
}

// Reduce computes the next controller state for e.
//
// Rules:
//   - Must not perform I/O
//   - Must not block
//   - The has-started guard is set here, before CmdStartPlayback reaches the player
func Reduce(s State, e Event, cfg Config) Result {
	var cmds []Command
	var tr *Transition

	switch ev := e.(type) {
	case PedometerChecked:
		if s.Phase != PhaseIdle {
			break
		}
		if !ev.Available {
			s.SensorUnavailable = true
			break
		}
		s.Phase = PhasePriming
		s.StartAt = ev.At
		s.LastUpdateAt = ev.At
		cmds = append(cmds, CmdLoadTrack{})

	case TrackLoaded:
		if s.Phase != PhasePriming {
			break
		}
		s.Phase = PhaseActive
		s.AudioReady = true

	case TrackLoadFailed:
		if s.Phase != PhasePriming {
			break
		}
		s.Phase = PhaseActive
		s.AudioReady = false

	case StepObserved:
		if s.Phase != PhaseActive {
			break
		}
		s, cmds, tr = reduceStep(s, ev.Sample, cfg)

	case Tick:
		if s.Phase != PhaseActive || !s.IsPlaying {
			break
		}
		s, cmds, tr = reduceTick(s, ev, cfg)

	case PlayerCommandFailed:
		s.PlayerErrors++

	default:
		// Unknown event type: no-op.
	}

	return Result{
		State:      s,
		Commands:   cmds,
		Transition: tr,
	}
}

func reduceStep(s State, sample cadence.StepSample, cfg Config) (State, []Command, *Transition) {
	prev := cadence.StepSample{Steps: s.LastSteps, At: s.LastUpdateAt}
	pace, ok := cadence.Estimate(prev, sample)
	if !ok {
		return s, nil, nil
	}

	desired := cfg.Mapper.Map(pace)

	s.NumUpdates++
	s.AvgInterval = sample.At.Sub(s.StartAt) / time.Duration(s.NumUpdates)
	s.Ratio = pace
	s.DesiredRate = desired
	s.LastSteps = sample.Steps
	s.LastUpdateAt = sample.At

	tr := &Transition{
		Kind:    TransitionStep,
		OldRate: s.CurrentRate,
		NewRate: s.CurrentRate,
	}

	var cmds []Command
	if pace > 0 && !s.IsPlaying {
		s.IsPlaying = true
		s.CurrentRate = desired
		tr.NewRate = desired
		if s.AudioReady {
			tr.Started = true
			cmds = append(cmds, CmdStartPlayback{Rate: desired, PreservePitch: cfg.PreservePitch})
		}
	}

	return s, cmds, tr
}

func reduceTick(s State, ev Tick, cfg Config) (State, []Command, *Transition) {
	tr := &Transition{
		Kind:    TransitionTick,
		OldRate: s.CurrentRate,
	}

	s.CurrentRate = Ramp(s.CurrentRate, s.DesiredRate, cfg.RateChangeSpeed)

	if s.Stale(ev.Now, cfg.StaleFactor) {
		tr.Decaying = true
		next := s.DesiredRate - cfg.IdleRateDecrease
		if next <= cfg.MinIdleRate {
			next = cfg.MinIdleRate
			tr.Floored = true
		}
		s.DesiredRate = next
	}

	tr.NewRate = s.CurrentRate

	var cmds []Command
	if s.AudioReady {
		cmds = append(cmds, CmdSetRate{Rate: s.CurrentRate, PreservePitch: cfg.PreservePitch})
	}
	return s, cmds, tr
}

// Ramp moves current toward desired by at most speed without overshooting.
func Ramp(current, desired, speed float64) float64 {
	if current < desired {
		current += speed
		if current > desired {
			current = desired
		}
	} else if current > desired {
		current -= speed
		if current < desired {
			current = desired
		}
	}
	return current
}
