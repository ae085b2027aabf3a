package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Remote controls a playback agent over a WebSocket.
//
// Protocol: one JSON text frame per command, one reply per command.
//
//	-> {"Load":{"track":"..."}}           <- {"Load":{"result":"Ok"}}
//	-> {"Play":{}}                        <- {"Play":{"result":"Ok"}}
//	-> {"SetLooping":{"loop":true}}       <- {"SetLooping":{"result":"Ok"}}
//	-> {"SetRate":{"rate":0.8,"preserve_pitch":false}}
//	                                      <- {"SetRate":{"result":"Error","error":"..."}}
//
// The first connection is made with retries. Once a connection has been
// established, a drop makes commands fail fast with ErrAgentDisconnected
// while a background goroutine reconnects.
type Remote struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	logger      *slog.Logger
	readTimeout time.Duration

	retryAttempts int
	retryDelay    time.Duration

	established  bool
	reconnecting bool
	closed       bool

	// bg scopes background reconnects; Close cancels it.
	bg     context.Context
	cancel context.CancelFunc
}

// ErrAgentDisconnected is returned while a dropped connection is being
// re-established in the background.
var ErrAgentDisconnected = errors.New("playback agent disconnected")

// RemoteConfig configures a Remote player.
type RemoteConfig struct {
	URL         string
	ReadTimeout time.Duration

	// RetryAttempts bounds reconnect attempts per command. Zero means 10.
	RetryAttempts int
	// RetryDelay is the pause between attempts. Zero means 500ms.
	RetryDelay time.Duration
}

// NewRemote validates the URL and creates a Remote. The connection is made on
// first use so a missing agent surfaces as a Load failure.
func NewRemote(cfg RemoteConfig, logger *slog.Logger) (*Remote, error) {
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	r := &Remote{
		url:           cfg.URL,
		logger:        logger,
		readTimeout:   cfg.ReadTimeout,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}
	r.bg, r.cancel = context.WithCancel(context.Background())
	if r.readTimeout <= 0 {
		r.readTimeout = time.Second
	}
	if r.retryAttempts <= 0 {
		r.retryAttempts = 10
	}
	if r.retryDelay <= 0 {
		r.retryDelay = 500 * time.Millisecond
	}
	return r, nil
}

// connect establishes the WebSocket connection.
func (r *Remote) connect(ctx context.Context) error {
	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}

	// Dial without holding mu so commands can fail fast meanwhile.
	conn, _, err := d.DialContext(ctx, r.url, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		conn.Close()
		return errors.New("player closed")
	}
	if r.conn != nil {
		r.conn.Close()
	}
	r.conn = conn
	r.established = true
	return nil
}

// connectWithRetry attempts to connect with a fixed delay between attempts.
func (r *Remote) connectWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		err := r.connect(ctx)
		if err == nil {
			r.logger.Info("connected to playback agent", "url", r.url)
			return nil
		}
		lastErr = err
		r.logger.Warn("playback agent connection failed; retrying...", "error", err, "attempt", attempt+1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", r.retryAttempts, lastErr)
}

// ensureConnected returns nil when a connection is up. Before the first
// connection it dials with retries; after a drop it starts a background
// reconnect and fails fast.
func (r *Remote) ensureConnected(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.conn != nil:
		r.mu.Unlock()
		return nil
	case r.closed:
		r.mu.Unlock()
		return errors.New("player closed")
	case r.established:
		if !r.reconnecting {
			r.reconnecting = true
			go r.reconnect()
		}
		r.mu.Unlock()
		return ErrAgentDisconnected
	}
	r.mu.Unlock()

	return r.connectWithRetry(ctx)
}

// reconnect retries until a connection is up or the player is closed.
func (r *Remote) reconnect() {
	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()
	for r.bg.Err() == nil {
		if err := r.connectWithRetry(r.bg); err == nil {
			return
		}
	}
}

type remoteResult struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// call sends {name: body} and waits for {name: {result, error}}.
func (r *Remote) call(ctx context.Context, name string, body any) error {
	if err := r.ensureConnected(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return errors.New("no websocket connection")
	}

	payload, err := json.Marshal(map[string]any{name: body})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	if err := r.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		r.conn = nil // mark connection as broken
		return err
	}

	deadline := time.Now().Add(r.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	r.conn.SetReadDeadline(deadline)
	defer func() {
		if r.conn != nil {
			r.conn.SetReadDeadline(time.Time{})
		}
	}()

	_, message, err := r.conn.ReadMessage()
	if err != nil {
		r.conn = nil
		return err
	}

	var reply map[string]remoteResult
	if err := json.Unmarshal(message, &reply); err != nil {
		return fmt.Errorf("decode %s reply: %w", name, err)
	}
	res, ok := reply[name]
	if !ok {
		return fmt.Errorf("unexpected reply to %s: %s", name, string(message))
	}
	if res.Result != "Ok" {
		return fmt.Errorf("%s: %s", name, res.Error)
	}

	r.logger.Debug("playback agent command", "command", name)
	return nil
}

func (r *Remote) Load(ctx context.Context, track string) error {
	if err := r.call(ctx, "Load", map[string]any{"track": track}); err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return nil
}

func (r *Remote) Play(ctx context.Context) error {
	if err := r.call(ctx, "Play", struct{}{}); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

func (r *Remote) SetLooping(ctx context.Context, loop bool) error {
	if err := r.call(ctx, "SetLooping", map[string]any{"loop": loop}); err != nil {
		return fmt.Errorf("set looping: %w", err)
	}
	return nil
}

func (r *Remote) SetRate(ctx context.Context, rate float64, preservePitch bool) error {
	body := map[string]any{"rate": rate, "preserve_pitch": preservePitch}
	if err := r.call(ctx, "SetRate", body); err != nil {
		return fmt.Errorf("set rate: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection.
func (r *Remote) Close() error {
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	return nil
}
