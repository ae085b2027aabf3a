// Package mqtt publishes session feedback and lifecycle events to MQTT.
package mqtt

import (
	"encoding/json"
	"time"

	"stridebeat/internal/session"
)

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "stridebeat/system"

// FeedbackTopic is the per-session feedback topic.
func FeedbackTopic(sessionID string) string {
	return "stridebeat/" + sessionID + "/feedback"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishFeedback sends a session feedback event. Failures are returned
	// and never crash the process.
	PublishFeedback(event FeedbackEvent) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// Feedback event types.
const (
	FeedbackText            = "TEXT"
	FeedbackPlaybackStarted = "PLAYBACK_STARTED"
	FeedbackPhase           = "PHASE"
)

// FeedbackEvent is a user-visible change in a session.
type FeedbackEvent struct {
	SessionID string
	Timestamp time.Time
	Type      string
	Text      string
	Rate      float64
	Phase     string
}

// System event names.
const (
	SystemStartup  = "STARTUP"
	SystemShutdown = "SHUTDOWN"
	SystemOffline  = "OFFLINE"
)

// SystemEvent represents a system lifecycle event.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	SessionID string
	Reason    string // e.g. "SIGTERM" (shutdown only)
}

// FeedbackPayload is the JSON body of a feedback message.
type FeedbackPayload struct {
	Feedback FeedbackPayloadInner `json:"feedback"`
}

type FeedbackPayloadInner struct {
	Timestamp string   `json:"timestamp"`
	Session   string   `json:"session"`
	Event     string   `json:"event"`
	Text      string   `json:"text,omitempty"`
	Rate      *float64 `json:"rate,omitempty"`
	Phase     string   `json:"phase,omitempty"`
}

// FormatFeedbackPayload creates the JSON payload for a feedback event.
func FormatFeedbackPayload(event FeedbackEvent) ([]byte, error) {
	inner := FeedbackPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Session:   event.SessionID,
		Event:     event.Type,
		Text:      event.Text,
		Phase:     event.Phase,
	}
	if event.Type == FeedbackPlaybackStarted {
		rate := event.Rate
		inner.Rate = &rate
	}
	return json.Marshal(FeedbackPayload{Feedback: inner})
}

// SystemPayload is the JSON body of a system message.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Session   string `json:"session,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Session:   event.SessionID,
			Reason:    event.Reason,
		},
	})
}

// FromBroadcast maps a session broadcast to a feedback event. Rate and
// display updates are too frequent for MQTT and are not forwarded.
func FromBroadcast(sessionID string, b session.Broadcast) (FeedbackEvent, bool) {
	switch ev := b.(type) {
	case session.TextChanged:
		return FeedbackEvent{SessionID: sessionID, Timestamp: ev.At, Type: FeedbackText, Text: ev.Text}, true
	case session.PlaybackStarted:
		return FeedbackEvent{SessionID: sessionID, Timestamp: ev.At, Type: FeedbackPlaybackStarted, Rate: ev.Rate}, true
	case session.PhaseChanged:
		return FeedbackEvent{SessionID: sessionID, Timestamp: ev.At, Type: FeedbackPhase, Phase: ev.Phase.String()}, true
	default:
		return FeedbackEvent{}, false
	}
}
