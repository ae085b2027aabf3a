package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// MPV drives an mpv instance over its JSON IPC socket
// (mpv --idle --input-ipc-server=<socket>).
//
// The connection is dialed lazily and re-dialed after any I/O error.
type MPV struct {
	mu sync.Mutex

	socketPath string
	timeout    time.Duration
	logger     *slog.Logger

	conn   net.Conn
	reader *bufio.Reader
	nextID int64

	// pitch tracks the last audio-pitch-correction value sent; nil means unknown.
	pitch *bool
}

// NewMPV creates an mpv player for socketPath. timeout bounds each request
// when the context carries no deadline.
func NewMPV(socketPath string, timeout time.Duration, logger *slog.Logger) *MPV {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MPV{
		socketPath: socketPath,
		timeout:    timeout,
		logger:     logger,
	}
}

type mpvRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type mpvResponse struct {
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// Load replaces the current file with track and leaves it paused.
func (m *MPV) Load(ctx context.Context, track string) error {
	if err := m.command(ctx, "loadfile", track, "replace"); err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if err := m.command(ctx, "set_property", "pause", true); err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return nil
}

func (m *MPV) Play(ctx context.Context) error {
	if err := m.command(ctx, "set_property", "pause", false); err != nil {
		return fmt.Errorf("mpv play: %w", err)
	}
	return nil
}

func (m *MPV) SetLooping(ctx context.Context, loop bool) error {
	v := "no"
	if loop {
		v = "inf"
	}
	if err := m.command(ctx, "set_property", "loop-file", v); err != nil {
		return fmt.Errorf("mpv set looping: %w", err)
	}
	return nil
}

func (m *MPV) SetRate(ctx context.Context, rate float64, preservePitch bool) error {
	m.mu.Lock()
	needPitch := m.pitch == nil || *m.pitch != preservePitch
	m.mu.Unlock()

	if needPitch {
		if err := m.command(ctx, "set_property", "audio-pitch-correction", preservePitch); err != nil {
			return fmt.Errorf("mpv set pitch correction: %w", err)
		}
		m.mu.Lock()
		p := preservePitch
		m.pitch = &p
		m.mu.Unlock()
	}

	if err := m.command(ctx, "set_property", "speed", rate); err != nil {
		return fmt.Errorf("mpv set speed: %w", err)
	}
	return nil
}

// Close closes the IPC connection. mpv itself keeps running.
func (m *MPV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked()
	return nil
}

func (m *MPV) dropLocked() {
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.conn = nil
	m.reader = nil
	m.pitch = nil
}

func (m *MPV) ensureConnectedLocked(ctx context.Context) error {
	if m.conn != nil {
		return nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", m.socketPath)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.socketPath, err)
	}
	m.conn = conn
	m.reader = bufio.NewReader(conn)
	m.logger.Info("connected to mpv", "socket", m.socketPath)
	return nil
}

// command sends one request and waits for the matching reply, skipping
// asynchronous event lines.
func (m *MPV) command(ctx context.Context, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureConnectedLocked(ctx); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(m.timeout)
	}
	_ = m.conn.SetDeadline(deadline)
	defer func() {
		if m.conn != nil {
			_ = m.conn.SetDeadline(time.Time{})
		}
	}()

	m.nextID++
	id := m.nextID

	payload, err := json.Marshal(mpvRequest{Command: args, RequestID: id})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	if _, err := m.conn.Write(append(payload, '\n')); err != nil {
		m.dropLocked()
		return err
	}

	for {
		line, err := m.reader.ReadBytes('\n')
		if err != nil {
			m.dropLocked()
			return err
		}

		var resp mpvResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			m.logger.Debug("mpv: skipping unparsable line", "error", err)
			continue
		}
		if resp.Event != "" || resp.RequestID != id {
			continue
		}
		if resp.Error != "success" {
			return errors.New("mpv: " + resp.Error)
		}

		m.logger.Debug("mpv command", "command", args[0], "request_id", id)
		return nil
	}
}
