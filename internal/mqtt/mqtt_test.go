package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"stridebeat/internal/control"
	"stridebeat/internal/session"
)

func TestFeedbackTopic(t *testing.T) {
	if got := FeedbackTopic("abc"); got != "stridebeat/abc/feedback" {
		t.Fatalf("topic = %q", got)
	}
}

func TestFormatFeedbackPayload(t *testing.T) {
	event := FeedbackEvent{
		SessionID: "abc",
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      FeedbackText,
		Text:      "DON'T STOP!!!",
	}

	payload, err := FormatFeedbackPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed FeedbackPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Feedback.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Feedback.Timestamp)
	}
	if parsed.Feedback.Event != "TEXT" || parsed.Feedback.Text != "DON'T STOP!!!" {
		t.Errorf("unexpected payload: %+v", parsed.Feedback)
	}
	if parsed.Feedback.Rate != nil {
		t.Errorf("rate should be omitted for text events")
	}
}

func TestFormatFeedbackPayloadPlaybackStarted(t *testing.T) {
	payload, err := FormatFeedbackPayload(FeedbackEvent{
		SessionID: "abc",
		Timestamp: time.Unix(0, 0),
		Type:      FeedbackPlaybackStarted,
		Rate:      0.6,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed FeedbackPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Feedback.Rate == nil || *parsed.Feedback.Rate != 0.6 {
		t.Fatalf("rate = %v", parsed.Feedback.Rate)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:     "SHUTDOWN",
		SessionID: "abc",
		Reason:    "SIGTERM",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := SystemPayloadInner{Timestamp: "2026-02-02T22:18:12Z", Event: "SHUTDOWN", Session: "abc", Reason: "SIGTERM"}
	if parsed.System != want {
		t.Fatalf("got %+v, want %+v", parsed.System, want)
	}
}

func TestFromBroadcast(t *testing.T) {
	at := time.Unix(10, 0)
	tests := []struct {
		name   string
		in     session.Broadcast
		wantOK bool
		want   FeedbackEvent
	}{
		{
			name:   "text",
			in:     session.TextChanged{Text: "Faster!", At: at},
			wantOK: true,
			want:   FeedbackEvent{SessionID: "s", Timestamp: at, Type: FeedbackText, Text: "Faster!"},
		},
		{
			name:   "playback started",
			in:     session.PlaybackStarted{Rate: 1, At: at},
			wantOK: true,
			want:   FeedbackEvent{SessionID: "s", Timestamp: at, Type: FeedbackPlaybackStarted, Rate: 1},
		},
		{
			name:   "phase",
			in:     session.PhaseChanged{Phase: control.PhaseActive, At: at},
			wantOK: true,
			want:   FeedbackEvent{SessionID: "s", Timestamp: at, Type: FeedbackPhase, Phase: "active"},
		},
		{name: "rate", in: session.RateChanged{CurrentRate: 0.7}},
		{name: "display", in: session.DisplayChanged{Visible: "F"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromBroadcast("s", tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishFeedback(FeedbackEvent{Type: FeedbackText, Text: "NICE!!"}); err != nil {
		t.Fatalf("PublishFeedback: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(f.Feedback()) != 1 || len(f.Payloads()) != 1 {
		t.Fatalf("feedback not recorded")
	}
	if ev := f.SystemEvents(); len(ev) != 1 || ev[0].Event != "STARTUP" {
		t.Fatalf("system events = %+v", ev)
	}
	if !f.Closed() {
		t.Fatalf("close not recorded")
	}

	f.PublishError = errors.New("broker down")
	if err := f.PublishFeedback(FeedbackEvent{}); err == nil {
		t.Fatalf("expected PublishError")
	}
}

func TestRunBridge_ForwardsFeedbackOnly(t *testing.T) {
	f := NewFakePublisher()
	src := make(chan session.Broadcast, 8)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	src <- session.RateChanged{CurrentRate: 0.7}
	src <- session.TextChanged{Text: "Keep going!"}
	src <- session.DisplayChanged{Visible: "K"}
	src <- session.PlaybackStarted{Rate: 0.9}
	close(src)

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBridge(context.Background(), f, "abc", src, logger)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("bridge did not stop when source closed")
	}

	got := f.Feedback()
	if len(got) != 2 {
		t.Fatalf("published %d events, want 2: %+v", len(got), got)
	}
	if got[0].Type != FeedbackText || got[1].Type != FeedbackPlaybackStarted {
		t.Fatalf("events = %+v", got)
	}
	if got[0].SessionID != "abc" {
		t.Fatalf("session id = %q", got[0].SessionID)
	}
}

func TestRunBridge_ContinuesAfterPublishError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	src := make(chan session.Broadcast, 2)
	src <- session.TextChanged{Text: "a"}
	close(src)

	// Must return (not block or panic) even though every publish fails.
	RunBridge(context.Background(), f, "abc", src, slog.New(slog.NewTextHandler(io.Discard, nil)))
}
