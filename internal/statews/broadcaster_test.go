package statews

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"stridebeat/internal/control"
	"stridebeat/internal/session"
)

func recvFrame(t *testing.T, ch <-chan frame) Envelope {
	t.Helper()
	select {
	case f := <-ch:
		msg := f.data
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("unmarshal %q: %v", msg, err)
		}
		if f.typ != env.Type {
			t.Fatalf("frame tagged %q carries %q", f.typ, env.Type)
		}
		return Envelope{Type: env.Type, Data: env.Data}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for broadcast frame")
	}
	return Envelope{}
}

func startBroadcaster(t *testing.T) (*Hub, chan session.Broadcast) {
	t.Helper()
	hub := newTestHub(t, 8, 64)
	src := make(chan session.Broadcast, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBroadcaster(ctx, hub, src, slog.Default())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, src
}

func TestRunBroadcaster_CoalescesRateUpdates(t *testing.T) {
	hub, src := startBroadcaster(t)
	at := time.Unix(100, 0)

	src <- session.RateChanged{CurrentRate: 0.61, DesiredRate: 1, At: at}
	src <- session.RateChanged{CurrentRate: 0.62, DesiredRate: 1, At: at}
	src <- session.RateChanged{CurrentRate: 0.63, DesiredRate: 1, At: at}

	env := recvFrame(t, hub.broadcast)
	if env.Type != TypeRateChanged {
		t.Fatalf("type = %q", env.Type)
	}
	var data RateChangedData
	if err := json.Unmarshal(env.Data.(json.RawMessage), &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.CurrentRate != 0.63 {
		t.Fatalf("current_rate = %v, want latest 0.63", data.CurrentRate)
	}

	select {
	case extra := <-hub.broadcast:
		t.Fatalf("unexpected extra frame %s", extra.data)
	case <-time.After(2 * CoalesceWindow):
	}
}

func TestRunBroadcaster_NonCoalescedFlushesPendingFirst(t *testing.T) {
	hub, src := startBroadcaster(t)
	at := time.Unix(100, 0)

	src <- session.RateChanged{CurrentRate: 0.7, At: at}
	src <- session.DisplayChanged{Visible: "Fa", At: at}
	src <- session.TextChanged{Text: "Faster!", At: at}

	want := []string{TypeRateChanged, TypeDisplayChanged, TypeTextChanged}
	for _, w := range want {
		if env := recvFrame(t, hub.broadcast); env.Type != w {
			t.Fatalf("type = %q, want %q", env.Type, w)
		}
	}
}

func TestRunBroadcaster_PhaseChangedImmediate(t *testing.T) {
	hub, src := startBroadcaster(t)

	src <- session.PhaseChanged{Phase: control.PhaseActive, AudioReady: true, At: time.Unix(1, 0)}

	env := recvFrame(t, hub.broadcast)
	if env.Type != TypePhaseChanged {
		t.Fatalf("type = %q", env.Type)
	}
	var data PhaseChangedData
	if err := json.Unmarshal(env.Data.(json.RawMessage), &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Phase != "active" || !data.AudioReady {
		t.Fatalf("data = %+v", data)
	}
}

func TestRunBroadcaster_StopsWhenSourceCloses(t *testing.T) {
	hub := newTestHub(t, 8, 8)
	src := make(chan session.Broadcast, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBroadcaster(context.Background(), hub, src, slog.Default())
	}()

	src <- session.RateChanged{CurrentRate: 0.9}
	close(src)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcaster did not stop")
	}
	// The pending coalesced update is flushed on exit.
	if env := recvFrame(t, hub.broadcast); env.Type != TypeRateChanged {
		t.Fatalf("type = %q", env.Type)
	}
}

func TestConvertBroadcast(t *testing.T) {
	tests := []struct {
		in   session.Broadcast
		want string
	}{
		{session.PhaseChanged{}, TypePhaseChanged},
		{session.PlaybackStarted{Rate: 1}, TypePlaybackStarted},
		{session.RateChanged{}, TypeRateChanged},
		{session.TextChanged{Text: "x"}, TypeTextChanged},
		{session.DisplayChanged{}, TypeDisplayChanged},
	}
	for _, tt := range tests {
		got, ok := convertBroadcast(tt.in)
		if !ok || got.Type != tt.want {
			t.Fatalf("convertBroadcast(%T) = %q, %v", tt.in, got.Type, ok)
		}
	}
	if _, ok := convertBroadcast(nil); ok {
		t.Fatalf("nil broadcast converted")
	}
}
