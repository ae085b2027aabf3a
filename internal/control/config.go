package control

import (
	"errors"
	"fmt"

	"stridebeat/internal/cadence"
)

// Controller defaults.
const (
	DefaultRateChangeSpeed  = 0.003 // per tick
	DefaultIdleRateDecrease = 0.002 // per stale tick
	DefaultMinIdleRate      = 0.3
	DefaultStaleFactor      = 1.2
)

// Config holds the tuning of the rate controller.
type Config struct {
	// Mapper converts pace into the desired rate and provides the rate bounds.
	Mapper cadence.Mapper

	// RateChangeSpeed is the maximum change of the current rate per tick.
	RateChangeSpeed float64

	// IdleRateDecrease is subtracted from the desired rate on each stale tick.
	IdleRateDecrease float64

	// MinIdleRate floors idle decay. It may be below Mapper.MinRate.
	MinIdleRate float64

	// StaleFactor scales the average update interval into the staleness threshold.
	StaleFactor float64

	// PreservePitch is passed through to every rate command.
	PreservePitch bool
}

// DefaultConfig returns the stock controller tuning.
func DefaultConfig() Config {
	return Config{
		Mapper:           cadence.DefaultMapper(),
		RateChangeSpeed:  DefaultRateChangeSpeed,
		IdleRateDecrease: DefaultIdleRateDecrease,
		MinIdleRate:      DefaultMinIdleRate,
		StaleFactor:      DefaultStaleFactor,
	}
}

// Validate checks that the tuning is self-consistent.
func (c Config) Validate() error {
	if c.Mapper.MinRate <= 0 {
		return errors.New("min_rate must be > 0")
	}
	if c.Mapper.MinRate > c.Mapper.MaxRate {
		return fmt.Errorf("min_rate (%g) must be <= max_rate (%g)", c.Mapper.MinRate, c.Mapper.MaxRate)
	}
	if c.Mapper.FullPace <= 0 {
		return errors.New("full_pace must be > 0")
	}
	if c.RateChangeSpeed <= 0 {
		return errors.New("rate_change_speed must be > 0")
	}
	if c.IdleRateDecrease < 0 {
		return errors.New("idle_rate_decrease must be >= 0")
	}
	if c.MinIdleRate <= 0 || c.MinIdleRate > c.Mapper.MinRate {
		return fmt.Errorf("min_idle_rate must be in (0, min_rate]")
	}
	if c.StaleFactor <= 0 {
		return errors.New("stale_factor must be > 0")
	}
	return nil
}
