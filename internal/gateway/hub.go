package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"indicore/internal/metrics"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and Redis PubSub fan-out.
// It acts as a compositor, delegating to focused components:
//   - PubSubRouter: Redis subscription + message routing
//   - Broadcaster: envelope construction + client-filtered fan-out
//   - ConfigStore: active indicator set CRUD + engine reload publish
type Hub struct {
	Rdb *goredis.Client
	TFs []int

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	activeSpecs []string

	// End-to-end latency tracker (update publish → WS fan-out)
	Latency *LatencyTracker

	// Prometheus metrics, shared with the serving binary. May be nil in tests.
	Prom *metrics.Metrics

	// Sub-components
	Router      *PubSubRouter
	Broadcaster *Broadcaster
	ConfigStore *ConfigStore
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

// NewHub creates a new Hub for managing WS clients and PubSub.
func NewHub(rdb *goredis.Client, tfs []int, prom *metrics.Metrics) *Hub {
	h := &Hub{
		Rdb:         rdb,
		TFs:         tfs,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(10000), // 10k sample ring buffer
		Prom:        prom,
	}
	// Wire sub-components
	h.Router = NewPubSubRouter(h)
	h.Broadcaster = NewBroadcaster(h)
	h.ConfigStore = NewConfigStore(h, rdb)

	// Restore active indicator set from Redis (if previously persisted)
	h.ConfigStore.Load(context.Background())

	return h
}

// Run starts the PubSub subscription loop. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.Router.Run(ctx)
}

// broadcast delegates to Broadcaster for performance-optimized fan-out.
func (h *Hub) broadcast(channel string, data []byte) {
	h.Broadcaster.Broadcast(channel, data)
}

// HandleWSRequest registers an upgraded WebSocket connection.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]*ClientSubscription),
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.Prom != nil {
		h.Prom.WSClients.Set(float64(count))
	}
	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	if h.Prom != nil {
		h.Prom.WSClients.Set(float64(count))
	}
	close(c.send)
}

// GetLatestAll returns a snapshot of all latest channel data.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
// Used by the /api/missed REST endpoint for client gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartMetricsBroadcast sends system metrics to all WS clients every 2s.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := CollectMetrics(start)
			if h.Latency != nil {
				m.LatencyP50, m.LatencyP95, m.LatencyP99 = h.Latency.Percentiles()
			}
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":    "metrics",
				"metrics": m,
			})
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- envelope:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
