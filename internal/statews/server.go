package statews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"stridebeat/internal/session"
)

// SnapshotFunc fetches a session snapshot through the session loop.
type SnapshotFunc func(ctx context.Context) (session.Snapshot, error)

// ServerConfig configures the state server.
type ServerConfig struct {
	Hub HubConfig
	// SnapshotTimeout bounds the snapshot round-trip. Zero means one second.
	SnapshotTimeout time.Duration
}

// Server serves the state WebSocket and /status.json.
type Server struct {
	logger *slog.Logger
	hub    *Hub

	snapshot        SnapshotFunc
	snapshotTimeout time.Duration

	upgrader websocket.Upgrader
}

// NewServer constructs the server components. Call Register on a mux, start
// Hub().Run(ctx) and RunBroadcaster.
func NewServer(logger *slog.Logger, snapshot SnapshotFunc, cfg ServerConfig) *Server {
	timeout := cfg.SnapshotTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Server{
		logger:          logger,
		hub:             NewHub(logger, cfg.Hub),
		snapshot:        snapshot,
		snapshotTimeout: timeout,
		upgrader: websocket.Upgrader{
			// Dashboards are served from anywhere on the LAN.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler at path and the JSON status endpoint.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
	mux.HandleFunc("/status.json", s.handleStatus)
}

func (s *Server) fetchSnapshot(ctx context.Context) (session.Snapshot, error) {
	if s.snapshot == nil {
		return session.Snapshot{}, errors.New("no snapshot source")
	}
	ctx, cancel := context.WithTimeout(ctx, s.snapshotTimeout)
	defer cancel()
	return s.snapshot(ctx)
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// Pumps are not tied to r.Context(): net/http cancels it when the handler
	// returns. The hub and socket errors end the connection instead.
	go client.writePump(context.Background())
	go client.readPump()

	snap, err := s.fetchSnapshot(r.Context())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	now := time.Now().UTC()
	initMsg, err := json.Marshal(Envelope{Type: TypeStateInit, Ts: &now, Data: snap})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}

	// Enqueue init message; if client is already slow, disconnect.
	select {
	case client.send <- initMsg:
	default:
		s.hub.unregister <- client
	}
}

// handleStatus serves the current snapshot as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := s.fetchSnapshot(r.Context())
	if err != nil {
		s.logger.Warn("status snapshot failed", "error", err)
		http.Error(w, "snapshot unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Debug("status write failed", "error", err)
	}
}

// ListenAndServe serves mux on addr and shuts it down gracefully when ctx is
// canceled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	logger.Info("state server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
