package gateway

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Per-client subscriptions: key = "symbol:tf"
	subMu sync.RWMutex
	subs  map[string]*ClientSubscription
}

// ClientSubscription scopes the channels a client receives: one symbol and
// TF, optionally narrowed to specific indicator names.
type ClientSubscription struct {
	Symbol     string   `json:"symbol"`
	TF         int      `json:"tf"`
	Indicators []string `json:"indicators,omitempty"` // e.g. "SMA_20"; empty = all
}

// SubKey returns the subscription identity key.
func (s *ClientSubscription) SubKey() string {
	return s.Symbol + ":" + strconv.Itoa(s.TF)
}

// SubscribeMsg is the client → gateway subscription request.
type SubscribeMsg struct {
	Type       string   `json:"type"`
	ReqID      string   `json:"req_id,omitempty"`
	Symbol     string   `json:"symbol"`
	TF         int      `json:"tf"`
	Indicators []string `json:"indicators,omitempty"`
}

// UnsubscribeMsg is the client → gateway unsubscription request.
type UnsubscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	TF     int    `json:"tf"`
}

func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}

		envelope, _ := json.Marshal(map[string]interface{}{
			"channel": channel,
			"data":    json.RawMessage(entry.Data),
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"seq":     entry.Seq,
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: use NextWriter to batch queued messages
			// into a single WebSocket frame with newline separators
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "SUBSCRIBE":
			var subMsg SubscribeMsg
			if err := json.Unmarshal(msg, &subMsg); err != nil {
				SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
				continue
			}
			c.handleSubscribe(subMsg)

		case "UNSUBSCRIBE":
			var unsubMsg UnsubscribeMsg
			if err := json.Unmarshal(msg, &unsubMsg); err != nil {
				continue
			}
			c.handleUnsubscribe(unsubMsg)

		default:
			// Application-level ping/pong for RTT measurement
			if base.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}

// handleSubscribe registers a subscription and sends the latest buffered
// state for its channels so the client renders immediately.
func (c *Client) handleSubscribe(msg SubscribeMsg) {
	if msg.Symbol == "" || msg.TF <= 0 {
		SendError(c, msg.ReqID, "symbol and tf are required")
		return
	}

	sub := &ClientSubscription{
		Symbol:     msg.Symbol,
		TF:         msg.TF,
		Indicators: msg.Indicators,
	}

	c.subMu.Lock()
	c.subs[sub.SubKey()] = sub
	c.subMu.Unlock()

	log.Printf("[gateway] client subscribed: symbol=%s tf=%d indicators=%v",
		msg.Symbol, msg.TF, msg.Indicators)

	// Snapshot of latest entries for the subscribed channels
	snapshot := make(map[string]json.RawMessage)
	c.hub.mu.RLock()
	for channel, entry := range c.hub.latest {
		if subscriptionMatches(sub, parseChannel(channel)) {
			snapshot[channel] = entry.Data
		}
	}
	c.hub.mu.RUnlock()

	SendJSON(c, map[string]interface{}{
		"type":   "subscribed",
		"req_id": msg.ReqID,
		"symbol": msg.Symbol,
		"tf":     msg.TF,
		"latest": snapshot,
	})
}

// handleUnsubscribe removes a subscription.
func (c *Client) handleUnsubscribe(msg UnsubscribeMsg) {
	sub := &ClientSubscription{Symbol: msg.Symbol, TF: msg.TF}
	c.subMu.Lock()
	delete(c.subs, sub.SubKey())
	c.subMu.Unlock()

	log.Printf("[gateway] client unsubscribed: symbol=%s tf=%d", msg.Symbol, msg.TF)
}

// matchesChannel checks if a PubSub channel matches any of this client's
// subscriptions. Clients with no subscriptions receive everything.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		return true
	}

	parsed := parseChannel(channel)
	if parsed == nil {
		return true // non-data channel (metrics, config) — always deliver
	}

	for _, sub := range c.subs {
		if subscriptionMatches(sub, parsed) {
			return true
		}
	}
	return false
}

// subscriptionMatches reports whether a parsed channel belongs to a
// subscription's symbol, TF and (for indicator channels) indicator set.
func subscriptionMatches(sub *ClientSubscription, parsed *parsedChannel) bool {
	if parsed == nil || sub.Symbol != parsed.symbol || sub.TF != parsed.tf {
		return false
	}
	if parsed.chType != "indicator" || len(sub.Indicators) == 0 {
		return true
	}
	for _, name := range sub.Indicators {
		if name == parsed.indName {
			return true
		}
	}
	return false
}

// parsedChannel holds the parsed components of a Redis PubSub channel name.
type parsedChannel struct {
	chType  string // "candle", "indicator"
	indName string // for indicator channels: "SMA_20", "RSI_14"
	tf      int    // timeframe in seconds
	symbol  string // "BTCUSDT"
}

// parseChannel parses a PubSub channel like "pub:candle:60s:BTCUSDT"
// or "pub:ind:SMA_20:60s:BTCUSDT".
func parseChannel(channel string) *parsedChannel {
	parts := strings.Split(channel, ":")
	if len(parts) < 4 {
		return nil
	}

	// pub:candle:60s:BTCUSDT  (4 parts)
	if parts[0] == "pub" && parts[1] == "candle" && len(parts) == 4 {
		return &parsedChannel{
			chType: "candle",
			tf:     parseTFStr(parts[2]),
			symbol: parts[3],
		}
	}

	// pub:ind:SMA_20:60s:BTCUSDT  (5 parts)
	if parts[0] == "pub" && parts[1] == "ind" && len(parts) == 5 {
		return &parsedChannel{
			chType:  "indicator",
			indName: parts[2],
			tf:      parseTFStr(parts[3]),
			symbol:  parts[4],
		}
	}

	return nil
}

// parseTFStr parses "60s" → 60.
func parseTFStr(s string) int {
	n, _ := strconv.Atoi(strings.TrimSuffix(s, "s"))
	return n
}

// SendJSON marshals v and queues it on the client's send channel.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// SendError queues an error message for the client.
func SendError(c *Client, reqID, msg string) {
	SendJSON(c, map[string]string{
		"type":   "error",
		"req_id": reqID,
		"error":  msg,
	})
}
