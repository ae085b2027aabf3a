package statews

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"stridebeat/internal/session"
)

// CoalesceWindow is the maximum time window during which bursty rate and
// display updates are coalesced (latest-wins) before broadcasting.
const CoalesceWindow = 50 * time.Millisecond

// RunBroadcaster reads session broadcasts, marshals them and fans them out to
// all hub clients. Intended to run as a single goroutine.
//
// rate_changed and display_changed are rate-limited: the latest pending value
// of each is flushed at most once per CoalesceWindow, even if updates keep
// arriving. Any other event flushes pending values first, then goes out
// immediately, so ordering across types is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan session.Broadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	// pending keeps insertion order so flushes preserve arrival order.
	var pending []outboundEvent
	var timer *time.Timer
	var timerCh <-chan time.Time

	send := func(ev outboundEvent) {
		ts := ev.At
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		msg, err := json.Marshal(Envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.Broadcast(ev.Type, msg)
	}

	flushPending := func() {
		for _, ev := range pending {
			send(ev)
		}
		pending = pending[:0]
	}

	stopTimer := func() {
		if timer != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	setPending := func(ev outboundEvent) {
		for i := range pending {
			if pending[i].Type == ev.Type {
				pending[i] = ev
				return
			}
		}
		pending = append(pending, ev)
	}

	for {
		select {
		case <-ctx.Done():
			// Best-effort: flush pending updates before exit.
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			flushPending()
			// Timer fired; it restarts with the next coalesced update.
			timer = nil
			timerCh = nil

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				// Unknown broadcasts are dropped.
				continue
			}

			// Do NOT reset the timer on each update; that would debounce
			// forever while updates keep arriving.
			if coalesced(ev.Type) {
				setPending(ev)
				if timer == nil {
					timer = time.NewTimer(CoalesceWindow)
					timerCh = timer.C
				}
				continue
			}

			flushPending()
			stopTimer()
			send(ev)
		}
	}
}
