package mqtt

import (
	"context"
	"log/slog"

	"stridebeat/internal/session"
)

// RunBridge forwards feedback-worthy session broadcasts to pub until ctx is
// canceled or src is closed. Publish failures are logged and skipped.
func RunBridge(ctx context.Context, pub Publisher, sessionID string, src <-chan session.Broadcast, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-src:
			if !ok {
				return
			}
			ev, ok := FromBroadcast(sessionID, b)
			if !ok {
				continue
			}
			if err := pub.PublishFeedback(ev); err != nil {
				logger.Warn("mqtt feedback publish failed", "type", ev.Type, "error", err)
			}
		}
	}
}
