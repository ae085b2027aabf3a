package session

import (
	"time"

	"stridebeat/internal/control"
	"stridebeat/internal/feedback"
)

// Snapshot is a coherent, copyable view of the session state. It is produced
// by the session goroutine; no other goroutine reads the live state.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`

	Phase             string `json:"phase"`
	SensorUnavailable bool   `json:"sensor_unavailable"`
	AudioReady        bool   `json:"audio_ready"`
	IsPlaying         bool   `json:"is_playing"`

	Steps         int     `json:"steps"`
	NumUpdates    int     `json:"num_updates"`
	AvgIntervalMs float64 `json:"avg_interval_ms"`

	Ratio       float64 `json:"ratio"`
	CurrentRate float64 `json:"current_rate"`
	DesiredRate float64 `json:"desired_rate"`
	MinRate     float64 `json:"min_rate"`
	MaxRate     float64 `json:"max_rate"`

	Text    string `json:"text"`
	Visible string `json:"visible"`
	Blinker bool   `json:"blinker"`

	PlayerErrors int `json:"player_errors"`
}

func buildSnapshot(id string, at time.Time, st control.State, cfg control.Config, d *feedback.Display) Snapshot {
	return Snapshot{
		SessionID:         id,
		At:                at,
		Phase:             st.Phase.String(),
		SensorUnavailable: st.SensorUnavailable,
		AudioReady:        st.AudioReady,
		IsPlaying:         st.IsPlaying,
		Steps:             st.LastSteps,
		NumUpdates:        st.NumUpdates,
		AvgIntervalMs:     float64(st.AvgInterval) / float64(time.Millisecond),
		Ratio:             st.Ratio,
		CurrentRate:       st.CurrentRate,
		DesiredRate:       st.DesiredRate,
		MinRate:           cfg.Mapper.MinRate,
		MaxRate:           cfg.Mapper.MaxRate,
		Text:              d.Text(),
		Visible:           d.Visible(),
		Blinker:           d.BlinkerVisible(),
		PlayerErrors:      st.PlayerErrors,
	}
}
