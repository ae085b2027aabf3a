package player

import (
	"context"
	"fmt"
	"sync"
)

// Call is one recorded player call.
type Call struct {
	Op            string // "load", "play", "loop", "rate"
	Track         string
	Loop          bool
	Rate          float64
	PreservePitch bool
}

// Fake records calls for test assertions.
type Fake struct {
	mu    sync.Mutex
	calls []Call

	// LoadErr, if set, is wrapped with ErrLoad and returned by Load.
	LoadErr error
	// RateErr, if set, is returned by SetRate.
	RateErr error
	// RateBlock, if set, makes SetRate wait until it is closed or ctx ends.
	RateBlock chan struct{}

	Closed bool
}

// NewFake creates a Fake player.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *Fake) Load(_ context.Context, track string) error {
	f.record(Call{Op: "load", Track: track})
	if f.LoadErr != nil {
		return fmt.Errorf("%w: %w", ErrLoad, f.LoadErr)
	}
	return nil
}

func (f *Fake) Play(context.Context) error {
	f.record(Call{Op: "play"})
	return nil
}

func (f *Fake) SetLooping(_ context.Context, loop bool) error {
	f.record(Call{Op: "loop", Loop: loop})
	return nil
}

func (f *Fake) SetRate(ctx context.Context, rate float64, preservePitch bool) error {
	f.record(Call{Op: "rate", Rate: rate, PreservePitch: preservePitch})
	if f.RateBlock != nil {
		select {
		case <-f.RateBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.RateErr
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Ops returns the recorded operation names in order.
func (f *Fake) Ops() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}
