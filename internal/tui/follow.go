package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// Follow connects to the state WebSocket at url and forwards every decoded
// frame to send (typically tea.Program.Send). It reconnects after
// retryDelay until ctx is canceled.
func Follow(ctx context.Context, url string, retryDelay time.Duration, send func(tea.Msg), logger *slog.Logger) {
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	for {
		err := followOnce(ctx, url, send, logger)
		if ctx.Err() != nil {
			return
		}
		send(DisconnectedMsg{Err: err})

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

func followOnce(ctx context.Context, url string, send func(tea.Msg), logger *slog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	send(ConnectedMsg{URL: url})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		msg, err := DecodeFrame(frame)
		if err != nil {
			logger.Debug("state frame rejected", "error", err)
			continue
		}
		if msg != nil {
			send(msg)
		}
	}
}
