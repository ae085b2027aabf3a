//go:build linux

package pedometer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIO counts debounced edges on a GPIO line, one step per edge. It suits a
// footswitch or reed sensor wired to a Raspberry Pi header.
type GPIO struct {
	chip      string
	offset    int
	debounce  time.Duration
	activeLow bool
	logger    *slog.Logger
	now       func() time.Time
}

// NewGPIO creates a GPIO source.
func NewGPIO(cfg GPIOConfig, logger *slog.Logger) *GPIO {
	chip := cfg.Chip
	if chip == "" {
		chip = "gpiochip0"
	}
	return &GPIO{
		chip:      chip,
		offset:    cfg.Line,
		debounce:  cfg.Debounce,
		activeLow: cfg.ActiveLow,
		logger:    logger,
		now:       time.Now,
	}
}

// Available reports whether the GPIO character device exists.
func (g *GPIO) Available() bool {
	_, err := os.Stat(filepath.Join("/dev", g.chip))
	return err == nil
}

// Subscribe requests the line with edge detection.
func (g *GPIO) Subscribe(ctx context.Context) (Subscription, error) {
	chip, err := gpiocdev.NewChip(g.chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	var line *gpiocdev.Line
	st := newStream(16, func() error {
		var errs []error
		if line != nil {
			// Leave the line as a plain input for whatever runs next.
			if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
			}
			if err := line.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close line: %w", err))
			}
		}
		if err := chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		return errors.Join(errs...)
	})

	c := newCounter(g.now)
	edge := gpiocdev.WithRisingEdge
	bias := gpiocdev.WithPullDown
	if g.activeLow {
		edge = gpiocdev.WithFallingEdge
		bias = gpiocdev.WithPullUp
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		bias,
		edge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			st.emit(c.add(1))
		}),
	}
	if g.debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(g.debounce))
	}

	line, err = chip.RequestLine(g.offset, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request line %d: %w", g.offset, err)
	}

	g.logger.Info("GPIO step source ready", "chip", g.chip, "line", g.offset, "active_low", g.activeLow)

	go func() {
		select {
		case <-ctx.Done():
			_ = st.Close()
		case <-st.done:
		}
	}()

	return st, nil
}
