package pedometer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ============================================================================
// IPC source - Unix Domain Socket step input
// ============================================================================
// External programs (phone bridges, scripts, the "steps send" subcommand)
// report steps over a Unix domain socket.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"steps": 120, "timestamp_ms": 1700000000000} or {"delta": 2}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCResponse is the reply sent back to IPC clients.
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
}

// IPC is a step source fed over a Unix domain socket.
type IPC struct {
	socketPath string
	logger     *slog.Logger
	now        func() time.Time
}

// NewIPC creates an IPC source listening on socketPath once subscribed.
func NewIPC(socketPath string, logger *slog.Logger) *IPC {
	return &IPC{socketPath: socketPath, logger: logger, now: time.Now}
}

// Available reports whether the socket directory exists.
func (s *IPC) Available() bool {
	fi, err := os.Stat(filepath.Dir(s.socketPath))
	return err == nil && fi.IsDir()
}

// Subscribe starts listening. The socket file is removed on Close.
func (s *IPC) Subscribe(ctx context.Context) (Subscription, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}

	if err := os.Chmod(s.socketPath, 0666); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	st := newStream(16, func() error {
		err := listener.Close()
		_ = os.Remove(s.socketPath)
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	})

	s.logger.Info("IPC step source listening", "socket", s.socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		select {
		case <-ctx.Done():
			_ = st.Close()
		case <-st.done:
		}
	}()

	go s.acceptLoop(listener, st, newCounter(s.now))

	return st, nil
}

func (s *IPC) acceptLoop(listener net.Listener, st *stream, c *counter) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-st.done:
				s.logger.Debug("IPC listener closed (shutdown)")
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				s.logger.Debug("IPC listener closed")
				return
			}

			s.logger.Error("IPC accept error", "error", err)
			continue
		}

		go s.handleConnection(conn, st, c)
	}
}

// handleConnection processes a single IPC client connection.
func (s *IPC) handleConnection(conn net.Conn, st *stream, c *counter) {
	defer conn.Close()

	s.logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	reply := func(resp IPCResponse) {
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("IPC failed to send response", "error", err)
		}
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		s.logger.Debug("IPC received", "line", string(line))

		msg, err := DecodeStepMessage(line)
		if err != nil {
			reply(IPCResponse{Status: "error", Error: err.Error()})
			continue
		}

		if !st.emit(msg.apply(c)) {
			reply(IPCResponse{Status: "error", Error: "source closed"})
			return
		}
		reply(IPCResponse{Status: "ok"})
	}

	s.logger.Debug("IPC connection closed")
}

// SendSteps sends one step message to an IPC source and waits for the reply.
func SendSteps(socketPath string, msg StepMessage) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal step message: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send step message: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}

	return nil
}
