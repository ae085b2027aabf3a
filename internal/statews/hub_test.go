package statews

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

// These tests exercise hub fanout and slow-client eviction without network
// I/O: clients are built with a nil websocket.Conn, which close() tolerates.

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(slog.Default(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func newTestClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     slog.Default(),
	}
}

func runHub(t *testing.T, hub *Hub) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(cancel)
	return cancel, done
}

func registerClient(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	cancel, done := runHub(t, hub)

	c1 := newTestClient(hub, "c1", 4)
	c2 := newTestClient(hub, "c2", 4)
	registerClient(t, hub, c1)
	registerClient(t, hub, c2)

	if n := hub.Clients(); n != 2 {
		t.Fatalf("clients = %d, want 2", n)
	}

	msg := []byte(`{"type":"text_changed","data":{"text":"Keep going!"}}`)

	// Broadcast may drop under scheduling pressure; feed the channel directly.
	hub.broadcast <- frame{typ: TypeTextChanged, data: msg}

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for hub to stop")
	}

	// Shutdown closes every client's send channel.
	for _, c := range []*Client{c1, c2} {
		if _, ok := <-c.send; ok {
			t.Fatalf("%s send channel still open after shutdown", c.remoteAddr)
		}
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	runHub(t, hub)

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	registerClient(t, hub, slow)
	registerClient(t, hub, fast)

	// Pre-fill the slow client buffer to simulate it being stuck.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"phase_changed","data":{"phase":"active"}}`)
	hub.broadcast <- frame{typ: TypePhaseChanged, data: msg}

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled message, then expect the channel to be closed.
	select {
	case <-slow.send:
	default:
	}

	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.Clients(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	if got := hub.Stats().Evicted[TypePhaseChanged]; got != 1 {
		t.Fatalf("evicted[phase_changed] = %d, want 1", got)
	}
}

func TestHub_BusyClientSkipsRateFramesAndStaysConnected(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	runHub(t, hub)

	busy := newTestClient(hub, "busy", 1)
	fast := newTestClient(hub, "fast", 8)
	registerClient(t, hub, busy)
	registerClient(t, hub, fast)

	busy.send <- []byte(`"already queued"`)

	for _, typ := range []string{TypeRateChanged, TypeDisplayChanged, TypeRateChanged} {
		hub.broadcast <- frame{typ: typ, data: []byte(`{"type":"` + typ + `"}`)}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-fast.send:
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for fast client frame %d", i)
		}
	}

	waitUntil(t, 500*time.Millisecond, func() bool {
		st := hub.Stats()
		return st.Skipped[TypeRateChanged] == 2 && st.Skipped[TypeDisplayChanged] == 1
	}, "skipped frames not counted")

	if n := hub.Clients(); n != 2 {
		t.Fatalf("clients = %d, want 2", n)
	}
	if got := <-busy.send; string(got) != `"already queued"` {
		t.Fatalf("busy client got %q", got)
	}
	select {
	case got, ok := <-busy.send:
		t.Fatalf("busy client got extra frame %q (open=%v)", got, ok)
	default:
	}
	if st := hub.Stats(); len(st.Evicted) != 0 {
		t.Fatalf("evicted = %v, want none", st.Evicted)
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	runHub(t, hub)

	c := newTestClient(hub, "c", 4)
	registerClient(t, hub, c)

	// A second unregister must not double-close the send channel.
	hub.unregister <- c
	hub.unregister <- c

	waitUntil(t, 500*time.Millisecond, func() bool {
		return hub.Clients() == 0
	}, "client not removed")
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := newTestHub(t, 1, 1)

	hub.Broadcast(TypeTextChanged, []byte("a"))
	hub.Broadcast(TypeRateChanged, []byte("b")) // dropped, must not block

	if got := len(hub.broadcast); got != 1 {
		t.Fatalf("queued = %d, want 1", got)
	}
	st := hub.Stats()
	if st.Dropped[TypeRateChanged] != 1 || st.Dropped[TypeTextChanged] != 0 {
		t.Fatalf("dropped = %v", st.Dropped)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
