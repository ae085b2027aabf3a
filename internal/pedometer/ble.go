package pedometer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Running Speed and Cadence GATT identifiers.
var (
	rscServiceUUID     = bluetooth.New16BitUUID(0x1814)
	rscMeasurementUUID = bluetooth.New16BitUUID(0x2A53)
)

// BLEConfig configures the BLE footpod source.
type BLEConfig struct {
	// Address restricts the scan to one device; empty accepts the first
	// device advertising the RSC service.
	Address     string
	ScanTimeout time.Duration
}

// BLE reads a Bluetooth LE Running Speed and Cadence footpod and integrates
// its instantaneous cadence into a cumulative step count.
type BLE struct {
	adapter     *bluetooth.Adapter
	address     string
	scanTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	enableOnce sync.Once
	enableErr  error
}

// NewBLE creates a BLE source on the default adapter.
func NewBLE(cfg BLEConfig, logger *slog.Logger) *BLE {
	timeout := cfg.ScanTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BLE{
		adapter:     bluetooth.DefaultAdapter,
		address:     strings.ToUpper(cfg.Address),
		scanTimeout: timeout,
		logger:      logger,
		now:         time.Now,
	}
}

func (b *BLE) enable() error {
	b.enableOnce.Do(func() {
		if err := b.adapter.Enable(); err != nil {
			b.enableErr = fmt.Errorf("enable BLE adapter: %w", err)
		}
	})
	return b.enableErr
}

// Available reports whether the BLE adapter could be enabled.
func (b *BLE) Available() bool {
	if err := b.enable(); err != nil {
		b.logger.Warn("BLE adapter unavailable", "error", err)
		return false
	}
	return true
}

// Subscribe scans for a footpod, connects and enables measurement notifications.
func (b *BLE) Subscribe(ctx context.Context) (Subscription, error) {
	if err := b.enable(); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	result, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	b.logger.Info("BLE footpod found", "address", result.Address.String(), "name", result.LocalName())

	dev, err := b.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect footpod: %w", err)
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{rscServiceUUID})
	if err != nil || len(services) == 0 {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("discover RSC service: %w", errors.Join(err, errors.New("service not found")))
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{rscMeasurementUUID})
	if err != nil || len(chars) == 0 {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("discover RSC measurement: %w", errors.Join(err, errors.New("characteristic not found")))
	}

	st := newStream(16, func() error {
		return dev.Disconnect()
	})

	integ := &cadenceIntegrator{}
	err = chars[0].EnableNotifications(func(buf []byte) {
		m, err := ParseRSCMeasurement(buf)
		if err != nil {
			b.logger.Debug("BLE measurement rejected", "error", err)
			return
		}
		now := b.now()
		steps, changed := integ.add(m.Cadence, now)
		if changed {
			st.emit(stepsAt(steps, now))
		}
	})
	if err != nil {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("enable notifications: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = st.Close()
		case <-st.done:
		}
	}()

	return st, nil
}

func (b *BLE) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- b.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !b.matches(result) {
				return
			}
			select {
			case found <- result:
				_ = adapter.StopScan()
			default:
			}
		})
	}()

	timer := time.NewTimer(b.scanTimeout)
	defer timer.Stop()

	select {
	case r := <-found:
		return r, nil
	case err := <-scanErr:
		if err == nil {
			err = errors.New("scan stopped")
		}
		return bluetooth.ScanResult{}, fmt.Errorf("BLE scan: %w", err)
	case <-timer.C:
		_ = b.adapter.StopScan()
		return bluetooth.ScanResult{}, fmt.Errorf("%w: no footpod found within %s", ErrUnavailable, b.scanTimeout)
	case <-ctx.Done():
		_ = b.adapter.StopScan()
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

func (b *BLE) matches(r bluetooth.ScanResult) bool {
	if b.address != "" {
		return strings.ToUpper(r.Address.String()) == b.address
	}
	return r.HasServiceUUID(rscServiceUUID)
}

// RSCMeasurement is a decoded RSC Measurement characteristic value.
type RSCMeasurement struct {
	SpeedMPS      float64 // metres per second
	Cadence       int     // steps per minute
	StrideM       float64 // metres, zero if absent
	TotalDistance float64 // metres, zero if absent
	Running       bool
}

// ParseRSCMeasurement decodes the RSC Measurement characteristic (0x2A53).
func ParseRSCMeasurement(buf []byte) (RSCMeasurement, error) {
	if len(buf) < 4 {
		return RSCMeasurement{}, fmt.Errorf("rsc measurement too short: %d bytes", len(buf))
	}
	flags := buf[0]
	m := RSCMeasurement{
		SpeedMPS: float64(binary.LittleEndian.Uint16(buf[1:3])) / 256,
		Cadence:  int(buf[3]),
		Running:  flags&0x04 != 0,
	}

	off := 4
	if flags&0x01 != 0 {
		if len(buf) < off+2 {
			return RSCMeasurement{}, errors.New("rsc measurement: truncated stride length")
		}
		m.StrideM = float64(binary.LittleEndian.Uint16(buf[off:off+2])) / 100
		off += 2
	}
	if flags&0x02 != 0 {
		if len(buf) < off+4 {
			return RSCMeasurement{}, errors.New("rsc measurement: truncated total distance")
		}
		m.TotalDistance = float64(binary.LittleEndian.Uint32(buf[off:off+4])) / 10
	}
	return m, nil
}

// cadenceIntegrator accumulates steps from instantaneous cadence readings.
type cadenceIntegrator struct {
	total float64
	last  time.Time
	steps int
}

// add integrates the cadence held since the previous reading and reports the
// whole-step total and whether it changed.
func (c *cadenceIntegrator) add(cadencePerMin int, now time.Time) (int, bool) {
	switch {
	case c.last.IsZero():
		c.last = now
	case now.After(c.last):
		c.total += float64(cadencePerMin) / 60 * now.Sub(c.last).Seconds()
		c.last = now
	}

	steps := int(math.Floor(c.total))
	if steps == c.steps {
		return steps, false
	}
	c.steps = steps
	return steps, true
}
