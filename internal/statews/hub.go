package statews

import (
	"context"
	"log/slog"
	"sync"
)

// frame is a serialized envelope tagged with its message type.
type frame struct {
	typ  string
	data []byte
}

// HubStats counts what the hub could not deliver, per frame type.
type HubStats struct {
	Clients int
	// Skipped counts rate/display frames not queued to a busy client. The
	// next frame of the same type supersedes them.
	Skipped map[string]uint64
	// Evicted counts clients disconnected because a state transition frame
	// did not fit their queue.
	Evicted map[string]uint64
	// Dropped counts frames rejected by a full hub queue.
	Dropped map[string]uint64
}

// Hub tracks connected dashboards and fans out state frames.
//
// Rate and display frames are latest-wins: a client whose queue is full just
// misses one. Phase, playback and text frames are transitions a dashboard
// cannot reconstruct, so a client that cannot take one is disconnected and
// resyncs from state_init on reconnect.
type Hub struct {
	logger *slog.Logger

	broadcast  chan frame
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}
	skipped map[string]uint64
	evicted map[string]uint64
	dropped map[string]uint64

	sendBuf int
}

// HubConfig sizes the hub queues. Zero values pick defaults.
type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int
	// BroadcastBuf is the hub inbound broadcast queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan frame, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		skipped:    make(map[string]uint64),
		evicted:    make(map[string]uint64),
		dropped:    make(map[string]uint64),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			st := h.Stats()
			h.logger.Info("ws hub stopping (context canceled)",
				"skipped", st.Skipped, "evicted", st.Evicted, "dropped", st.Dropped)
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case f := <-h.broadcast:
			for _, c := range h.deliver(f) {
				h.removeClient(c, "slow_client:"+f.typ)
			}
		}
	}
}

// deliver queues f to every client and returns the clients to evict.
func (h *Hub) deliver(f frame) []*Client {
	latestWins := coalesced(f.typ)

	var slow []*Client
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- f.data:
		default:
			if latestWins {
				h.skipped[f.typ]++
				continue
			}
			h.evicted[f.typ]++
			slow = append(slow, c)
		}
	}
	return slow
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stats returns a copy of the delivery counters.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HubStats{
		Clients: len(h.clients),
		Skipped: copyCounts(h.skipped),
		Evicted: copyCounts(h.evicted),
		Dropped: copyCounts(h.dropped),
	}
}

func copyCounts(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// removeClient closes c if it is still registered. Membership is checked and
// cleared under the lock, so a client is closed at most once.
func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// Broadcast enqueues a serialized frame of type typ. It never blocks; when
// the hub queue is full the frame is dropped and counted.
func (h *Hub) Broadcast(typ string, msg []byte) {
	select {
	case h.broadcast <- frame{typ: typ, data: msg}:
	default:
		h.mu.Lock()
		h.dropped[typ]++
		h.mu.Unlock()
		h.logger.Warn("ws hub broadcast queue full, dropping frame", "type", typ, "bytes", len(msg))
	}
}
