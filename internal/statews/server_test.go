package statews

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stridebeat/internal/session"
)

func fixedSnapshot(snap session.Snapshot) SnapshotFunc {
	return func(context.Context) (session.Snapshot, error) { return snap, nil }
}

func newTestServer(t *testing.T, fn SnapshotFunc) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(slog.Default(), fn, ServerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Hub().Run(ctx)

	mux := http.NewServeMux()
	s.Register(mux, "/ws")
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return s, ts
}

func TestServer_StateInitOnConnect(t *testing.T) {
	s, ts := newTestServer(t, fixedSnapshot(session.Snapshot{
		SessionID:   "abc",
		Phase:       "active",
		CurrentRate: 0.8,
		Text:        "Keep going!",
	}))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env struct {
		Type string           `json:"type"`
		Ts   *time.Time       `json:"ts"`
		Data session.Snapshot `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypeStateInit || env.Ts == nil {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Data.SessionID != "abc" || env.Data.CurrentRate != 0.8 || env.Data.Text != "Keep going!" {
		t.Fatalf("snapshot = %+v", env.Data)
	}

	// Broadcasts reach the connected client.
	waitUntil(t, time.Second, func() bool { return s.Hub().Clients() == 1 }, "client not registered")
	s.Hub().Broadcast(TypeTextChanged, []byte(`{"type":"text_changed","data":{"text":"Faster!"}}`))

	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if !strings.Contains(string(msg), "Faster!") {
		t.Fatalf("broadcast = %s", msg)
	}
}

func TestServer_ClientDisconnectUnregisters(t *testing.T) {
	s, ts := newTestServer(t, fixedSnapshot(session.Snapshot{}))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return s.Hub().Clients() == 1 }, "client not registered")

	conn.Close()
	waitUntil(t, 2*time.Second, func() bool { return s.Hub().Clients() == 0 }, "client not unregistered")
}

func TestServer_StatusJSON(t *testing.T) {
	_, ts := newTestServer(t, fixedSnapshot(session.Snapshot{SessionID: "abc", Phase: "priming"}))

	resp, err := http.Get(ts.URL + "/status.json")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q", ct)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.SessionID != "abc" || snap.Phase != "priming" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestServer_StatusJSONUnavailable(t *testing.T) {
	_, ts := newTestServer(t, func(context.Context) (session.Snapshot, error) {
		return session.Snapshot{}, errors.New("stopped")
	})

	resp, err := http.Get(ts.URL + "/status.json")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestServer_StatusJSONRejectsPost(t *testing.T) {
	_, ts := newTestServer(t, fixedSnapshot(session.Snapshot{}))

	resp, err := http.Post(ts.URL+"/status.json", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
