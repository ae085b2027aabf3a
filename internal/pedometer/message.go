package pedometer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stridebeat/internal/cadence"
)

// StepMessage is the JSON step report accepted over IPC and MQTT.
//
// Either Steps (absolute cumulative count) or Delta (increment) is set.
// TimestampMs is optional Unix milliseconds; zero means arrival time.
type StepMessage struct {
	Steps       *int  `json:"steps,omitempty"`
	Delta       int   `json:"delta,omitempty"`
	TimestampMs int64 `json:"timestamp_ms,omitempty"`
}

// DecodeStepMessage parses and validates a StepMessage.
func DecodeStepMessage(b []byte) (StepMessage, error) {
	var m StepMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return StepMessage{}, fmt.Errorf("decode step message: %w", err)
	}
	if m.Steps == nil && m.Delta == 0 {
		return StepMessage{}, errors.New("step message needs steps or delta")
	}
	if m.Steps != nil && *m.Steps < 0 {
		return StepMessage{}, errors.New("steps must be >= 0")
	}
	if m.Delta < 0 {
		return StepMessage{}, errors.New("delta must be >= 0")
	}
	return m, nil
}

// apply folds m into c and returns the resulting sample.
func (m StepMessage) apply(c *counter) cadence.StepSample {
	var at time.Time
	if m.TimestampMs > 0 {
		at = time.UnixMilli(m.TimestampMs)
	}
	if m.Steps != nil {
		return c.set(*m.Steps, at)
	}
	s := c.add(m.Delta)
	if !at.IsZero() {
		s.At = at
	}
	return s
}
