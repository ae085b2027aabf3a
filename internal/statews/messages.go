// Package statews pushes session state to dashboards over WebSocket.
//
// Messages are JSON text frames with an envelope: {type, ts, data}. The first
// message on connect is "state_init" carrying a session snapshot taken through
// the session loop. Later messages mirror session broadcasts.
package statews

import (
	"time"

	"stridebeat/internal/session"
)

// Message types.
const (
	TypeStateInit       = "state_init"
	TypePhaseChanged    = "phase_changed"
	TypePlaybackStarted = "playback_started"
	TypeRateChanged     = "rate_changed"
	TypeTextChanged     = "text_changed"
	TypeDisplayChanged  = "display_changed"
)

// Envelope is the wire format envelope for WS messages.
type Envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// PhaseChangedData is the payload of "phase_changed".
type PhaseChangedData struct {
	Phase             string `json:"phase"`
	SensorUnavailable bool   `json:"sensor_unavailable"`
	AudioReady        bool   `json:"audio_ready"`
}

// PlaybackStartedData is the payload of "playback_started".
type PlaybackStartedData struct {
	Rate float64 `json:"rate"`
}

// RateChangedData is the payload of "rate_changed".
type RateChangedData struct {
	CurrentRate float64 `json:"current_rate"`
	DesiredRate float64 `json:"desired_rate"`
	Ratio       float64 `json:"ratio"`
}

// TextChangedData is the payload of "text_changed".
type TextChangedData struct {
	Text string `json:"text"`
}

// DisplayChangedData is the payload of "display_changed".
type DisplayChangedData struct {
	Visible string `json:"visible"`
	Blinker bool   `json:"blinker"`
}

// outboundEvent is a pre-typed, externally-consumable state event.
type outboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means now
}

func convertBroadcast(b session.Broadcast) (outboundEvent, bool) {
	switch ev := b.(type) {
	case session.PhaseChanged:
		return outboundEvent{
			Type: TypePhaseChanged,
			Data: PhaseChangedData{
				Phase:             ev.Phase.String(),
				SensorUnavailable: ev.SensorUnavailable,
				AudioReady:        ev.AudioReady,
			},
			At: ev.At,
		}, true

	case session.PlaybackStarted:
		return outboundEvent{Type: TypePlaybackStarted, Data: PlaybackStartedData{Rate: ev.Rate}, At: ev.At}, true

	case session.RateChanged:
		return outboundEvent{
			Type: TypeRateChanged,
			Data: RateChangedData{CurrentRate: ev.CurrentRate, DesiredRate: ev.DesiredRate, Ratio: ev.Ratio},
			At:   ev.At,
		}, true

	case session.TextChanged:
		return outboundEvent{Type: TypeTextChanged, Data: TextChangedData{Text: ev.Text}, At: ev.At}, true

	case session.DisplayChanged:
		return outboundEvent{
			Type: TypeDisplayChanged,
			Data: DisplayChangedData{Visible: ev.Visible, Blinker: ev.Blinker},
			At:   ev.At,
		}, true

	default:
		return outboundEvent{}, false
	}
}

// coalesced reports whether bursts of this type are rate-limited latest-wins.
func coalesced(typ string) bool {
	return typ == TypeRateChanged || typ == TypeDisplayChanged
}
