package tui

import (
	"encoding/json"
	"fmt"

	"stridebeat/internal/session"
	"stridebeat/internal/statews"
)

// StateInitMsg carries the snapshot sent on connect.
type StateInitMsg struct {
	Snapshot session.Snapshot
}

// PhaseMsg reports a phase change.
type PhaseMsg statews.PhaseChangedData

// PlaybackStartedMsg reports that music started.
type PlaybackStartedMsg statews.PlaybackStartedData

// RateMsg reports new rates.
type RateMsg statews.RateChangedData

// TextMsg reports a new feedback text.
type TextMsg statews.TextChangedData

// DisplayMsg reports a reveal or blink step.
type DisplayMsg statews.DisplayChangedData

// ConnectedMsg is sent when the state socket connects.
type ConnectedMsg struct {
	URL string
}

// DisconnectedMsg is sent when the state socket drops.
type DisconnectedMsg struct {
	Err error
}

// DecodeFrame turns one state WebSocket frame into a tea message.
// Unknown types decode to nil without error.
func DecodeFrame(frame []byte) (any, error) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var (
		msg any
		err error
	)
	switch env.Type {
	case statews.TypeStateInit:
		var snap session.Snapshot
		snap, err = decodeData[session.Snapshot](env.Data)
		msg = StateInitMsg{Snapshot: snap}
	case statews.TypePhaseChanged:
		msg, err = decodeData[PhaseMsg](env.Data)
	case statews.TypePlaybackStarted:
		msg, err = decodeData[PlaybackStartedMsg](env.Data)
	case statews.TypeRateChanged:
		msg, err = decodeData[RateMsg](env.Data)
	case statews.TypeTextChanged:
		msg, err = decodeData[TextMsg](env.Data)
	case statews.TypeDisplayChanged:
		msg, err = decodeData[DisplayMsg](env.Data)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}

func decodeData[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}
