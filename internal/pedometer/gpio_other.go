//go:build !linux

package pedometer

import (
	"context"
	"log/slog"
)

// GPIO is not available on non-Linux platforms.
type GPIO struct{}

// NewGPIO returns a source that is never available on non-Linux platforms.
func NewGPIO(GPIOConfig, *slog.Logger) *GPIO { return &GPIO{} }

func (*GPIO) Available() bool { return false }

func (*GPIO) Subscribe(context.Context) (Subscription, error) {
	return nil, ErrUnavailable
}
