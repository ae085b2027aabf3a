// Package pedometer provides step-count sources.
//
// Every source delivers cumulative step counts (monotonic non-decreasing apart
// from device resets) stamped with the device time when one is known, else
// the arrival time. Consumers that compare samples with their own clock must
// restamp them. Sources are checked once with Available and subscribed once
// per session.
package pedometer

import (
	"context"
	"errors"
	"sync"
	"time"

	"stridebeat/internal/cadence"
)

// ErrUnavailable is returned by Subscribe when the capability is absent.
var ErrUnavailable = errors.New("pedometer: unavailable")

// Source is a step-count capability.
type Source interface {
	// Available reports whether the capability is present.
	Available() bool
	// Subscribe starts delivery. The returned Subscription must be closed.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a live step feed.
type Subscription interface {
	// Samples delivers samples in arrival order. It may be closed by the
	// source when the feed ends.
	Samples() <-chan cadence.StepSample
	// Close stops delivery and releases the underlying resources.
	Close() error
}

// stream is the Subscription shared by all sources.
type stream struct {
	ch   chan cadence.StepSample
	done chan struct{}

	closeOnce sync.Once
	stop      func() error
	closeErr  error
}

func newStream(buf int, stop func() error) *stream {
	return &stream{
		ch:   make(chan cadence.StepSample, buf),
		done: make(chan struct{}),
		stop: stop,
	}
}

func (s *stream) Samples() <-chan cadence.StepSample { return s.ch }

// emit delivers sample, blocking until it is consumed or the stream is closed.
func (s *stream) emit(sample cadence.StepSample) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- sample:
		return true
	case <-s.done:
		return false
	}
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.closeErr = s.stop()
		}
	})
	return s.closeErr
}

// counter turns increments and absolute readings into cumulative samples.
type counter struct {
	mu    sync.Mutex
	steps int
	now   func() time.Time
}

func newCounter(now func() time.Time) *counter {
	if now == nil {
		now = time.Now
	}
	return &counter{now: now}
}

// add increments the total by n and returns the stamped sample.
func (c *counter) add(n int) cadence.StepSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps += n
	return cadence.StepSample{Steps: c.steps, At: c.now()}
}

// set records an absolute reading. A zero at means "now".
func (c *counter) set(steps int, at time.Time) cadence.StepSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = steps
	if at.IsZero() {
		at = c.now()
	}
	return cadence.StepSample{Steps: c.steps, At: at}
}

func stepsAt(steps int, at time.Time) cadence.StepSample {
	return cadence.StepSample{Steps: steps, At: at}
}
