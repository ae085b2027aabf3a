package pedometer

import (
	"context"
	"sync"
	"time"

	"stridebeat/internal/cadence"
)

// Fake is a scripted source for tests. Push blocks until the consumer has
// received the sample, so delivery order is deterministic.
type Fake struct {
	available bool

	// SubscribeErr, if set, is returned by Subscribe.
	SubscribeErr error

	mu     sync.Mutex
	sub    *stream
	closed bool
	subbed chan struct{}
}

// NewFake creates a Fake reporting the given availability.
func NewFake(available bool) *Fake {
	return &Fake{
		available: available,
		subbed:    make(chan struct{}),
	}
}

func (f *Fake) Available() bool { return f.available }

func (f *Fake) Subscribe(context.Context) (Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sub = newStream(0, func() error {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		return nil
	})
	close(f.subbed)
	return f.sub, nil
}

// Subscribed is closed once Subscribe has been called.
func (f *Fake) Subscribed() <-chan struct{} { return f.subbed }

// Push delivers a sample. It returns false if the subscription is closed.
func (f *Fake) Push(steps int, at time.Time) bool {
	f.mu.Lock()
	sub := f.sub
	f.mu.Unlock()
	if sub == nil {
		return false
	}
	return sub.emit(cadence.StepSample{Steps: steps, At: at})
}

// End closes the sample channel, simulating the device feed ending.
func (f *Fake) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		close(f.sub.ch)
	}
}

// Closed reports whether the subscription was released.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Steady generates a constant cadence. It backs the demo mode.
type Steady struct {
	StepsPerSecond float64
	Interval       time.Duration
}

func (s Steady) Available() bool { return s.StepsPerSecond > 0 }

func (s Steady) Subscribe(ctx context.Context) (Subscription, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(ctx)
	st := newStream(1, func() error {
		cancel()
		return nil
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		start := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				steps := int(s.StepsPerSecond * now.Sub(start).Seconds())
				if !st.emit(cadence.StepSample{Steps: steps, At: now}) {
					return
				}
			}
		}
	}()

	return st, nil
}
