// Package player provides rate-adjustable, loopable audio playback handles.
package player

import (
	"context"
	"errors"
)

// ErrLoad is wrapped by every error that means "the track could not be loaded".
// Callers treat it as degraded feedback (no music), never as fatal.
var ErrLoad = errors.New("player: load failed")

// Player is a single loopable, rate-adjustable playback handle.
//
// Implementations must tolerate SetRate being called with an unchanged value.
type Player interface {
	Load(ctx context.Context, track string) error
	Play(ctx context.Context) error
	SetLooping(ctx context.Context, loop bool) error
	SetRate(ctx context.Context, rate float64, preservePitch bool) error
	Close() error
}

// Null is used when no player is configured. Load always fails with ErrLoad so
// the session degrades to text-only feedback.
type Null struct{}

func (Null) Load(context.Context, string) error {
	return errors.Join(ErrLoad, errors.New("no player configured"))
}
func (Null) Play(context.Context) error                   { return nil }
func (Null) SetLooping(context.Context, bool) error       { return nil }
func (Null) SetRate(context.Context, float64, bool) error { return nil }
func (Null) Close() error                                 { return nil }
