package pedometer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Linux input event constants
const (
	evKey    = 0x01
	keyPress = 1
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

func decodeInputEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ev)
	return ev, err
}

// time returns the kernel timestamp, or the zero time if unset.
func (ev inputEvent) time() time.Time {
	if ev.Sec == 0 && ev.Usec == 0 {
		return time.Time{}
	}
	return time.Unix(ev.Sec, ev.Usec*int64(time.Microsecond))
}

// readDeviceEvents reads input events from r until it fails or done closes.
// This runs in a dedicated goroutine and blocks on read operations.
func readDeviceEvents(r io.Reader, events chan<- inputEvent, readErr chan<- error, done <-chan struct{}) {
	buf := make([]byte, inputEventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			select {
			case readErr <- err:
			case <-done:
			}
			return
		}
		ev, err := decodeInputEvent(buf)
		if err != nil {
			// Skip malformed events
			continue
		}
		select {
		case events <- ev:
		case <-done:
			return
		}
	}
}

// EvdevConfig configures the input-device step source.
type EvdevConfig struct {
	Devices []string
	// KeyCodes limits which keys count as steps; empty counts every key press.
	KeyCodes []uint16
}

// Evdev counts key presses on Linux input devices (foot switches, step mats,
// USB pedometers exposing a HID button) as steps.
type Evdev struct {
	devices []string
	keys    map[uint16]bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewEvdev creates an input-device source.
func NewEvdev(cfg EvdevConfig, logger *slog.Logger) *Evdev {
	var keys map[uint16]bool
	if len(cfg.KeyCodes) > 0 {
		keys = make(map[uint16]bool, len(cfg.KeyCodes))
		for _, k := range cfg.KeyCodes {
			keys[k] = true
		}
	}
	return &Evdev{
		devices: cfg.Devices,
		keys:    keys,
		logger:  logger,
		now:     time.Now,
	}
}

// Available reports whether every configured device exists.
func (e *Evdev) Available() bool {
	if len(e.devices) == 0 {
		return false
	}
	for _, d := range e.devices {
		if _, err := os.Stat(d); err != nil {
			e.logger.Warn("input device unavailable", "device", d, "error", err)
			return false
		}
	}
	return true
}

func (e *Evdev) isStep(ev inputEvent) bool {
	if ev.Type != evKey || ev.Value != keyPress {
		return false
	}
	return e.keys == nil || e.keys[ev.Code]
}

// Subscribe opens the devices and starts counting presses.
func (e *Evdev) Subscribe(ctx context.Context) (Subscription, error) {
	if len(e.devices) == 0 {
		return nil, fmt.Errorf("%w: no input devices configured", ErrUnavailable)
	}

	files := make([]*os.File, 0, len(e.devices))
	closeFiles := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}
	for _, d := range e.devices {
		f, err := os.Open(d)
		if err != nil {
			_ = closeFiles()
			return nil, errors.Join(ErrUnavailable, fmt.Errorf("open input device: %w", err))
		}
		files = append(files, f)
		e.logger.Info("opened input device", "device", d)
	}

	st := newStream(0, closeFiles)
	events := make(chan inputEvent, 64)
	readErr := make(chan error, 1)

	go readInputEvents(files, events, readErr, st.done)
	go e.pump(ctx, st, events, readErr)

	return st, nil
}

func (e *Evdev) pump(ctx context.Context, st *stream, events <-chan inputEvent, readErr <-chan error) {
	defer close(st.ch)

	c := newCounter(e.now)
	for {
		select {
		case <-ctx.Done():
			_ = st.Close()
			return
		case <-st.done:
			return
		case err := <-readErr:
			e.logger.Error("input device read failed", "error", err)
			return
		case ev := <-events:
			if !e.isStep(ev) {
				continue
			}
			sample := c.add(1)
			if at := ev.time(); !at.IsZero() {
				sample.At = at
			}
			if !st.emit(sample) {
				return
			}
		}
	}
}
