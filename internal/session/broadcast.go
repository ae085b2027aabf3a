package session

import (
	"time"

	"stridebeat/internal/control"
)

// Broadcast is a state change published by the session loop for external
// consumers (state WebSocket, MQTT). Broadcasts are informational; dropping
// one never affects the controller.
type Broadcast interface {
	broadcastMarker()
}

// PhaseChanged is emitted when the controller phase changes.
type PhaseChanged struct {
	Phase             control.Phase
	SensorUnavailable bool
	AudioReady        bool
	At                time.Time
}

func (PhaseChanged) broadcastMarker() {}

// PlaybackStarted is emitted once, when playback starts.
type PlaybackStarted struct {
	Rate float64
	At   time.Time
}

func (PlaybackStarted) broadcastMarker() {}

// RateChanged is emitted when the current or desired rate moves.
type RateChanged struct {
	CurrentRate float64
	DesiredRate float64
	Ratio       float64
	At          time.Time
}

func (RateChanged) broadcastMarker() {}

// TextChanged is emitted when the feedback text rules pick a new text.
type TextChanged struct {
	Text string
	At   time.Time
}

func (TextChanged) broadcastMarker() {}

// DisplayChanged is emitted on every reveal or blink step.
type DisplayChanged struct {
	Visible string
	Blinker bool
	At      time.Time
}

func (DisplayChanged) broadcastMarker() {}
