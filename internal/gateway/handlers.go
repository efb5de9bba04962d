package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, rdb *goredis.Client, ctx context.Context, tfs []int, processStart time.Time) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastTS := r.URL.Query().Get("last_ts")
		hub.HandleWSRequest(conn, lastTS)
	})

	// REST: latest values across all channels
	mux.HandleFunc("/api/indicators/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetLatestAll())
	})

	// REST: available timeframes
	mux.HandleFunc("/api/tfs", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		tfList := make([]TFInfo, len(tfs))
		for i, tf := range tfs {
			tfList[i] = TFInfo{Seconds: tf, Label: TFLabel(tf)}
		}
		json.NewEncoder(w).Encode(tfList)
	})

	// REST: static config
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tfs":        tfs,
			"indicators": hub.ConfigStore.Get(),
		})
	})

	// REST: GET/POST active indicator set
	mux.HandleFunc("/api/indicators/active", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if r.Method == "POST" {
			var req struct {
				Indicators []string `json:"indicators"` // spec strings, e.g. "SMA:20"
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
				return
			}
			hub.ConfigStore.Set(ctx, req.Indicators)
			log.Printf("[gateway] active indicator set updated: %v", req.Indicators)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"indicators": hub.ConfigStore.Get(),
		})
	})

	// REST: system metrics snapshot
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		m := CollectMetrics(processStart)
		if hub.Latency != nil {
			m.LatencyP50, m.LatencyP95, m.LatencyP99 = hub.Latency.Percentiles()
		}
		json.NewEncoder(w).Encode(m)
	})

	// REST: replay buffered envelopes for client-side gap backfill.
	// Params: channel, from_seq, to_seq (inclusive).
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		channel := r.URL.Query().Get("channel")
		fromSeq, _ := strconv.ParseInt(r.URL.Query().Get("from_seq"), 10, 64)
		toSeq, _ := strconv.ParseInt(r.URL.Query().Get("to_seq"), 10, 64)
		if channel == "" || fromSeq <= 0 {
			http.Error(w, `{"error":"channel and from_seq are required"}`, http.StatusBadRequest)
			return
		}
		if toSeq <= 0 {
			toSeq = hub.GetChannelSeq(channel)
		}

		envelopes := hub.GetReplayRange(channel, fromSeq, toSeq)
		if hub.Prom != nil && len(envelopes) > 0 {
			hub.Prom.WSReplaysServed.Add(float64(len(envelopes)))
		}

		msgs := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			msgs[i] = e
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"channel":  channel,
			"from_seq": fromSeq,
			"to_seq":   toSeq,
			"current":  hub.GetChannelSeq(channel),
			"messages": msgs,
		})
	})

	// REST: historical candles from Redis streams
	mux.HandleFunc("/api/candles", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, `{"error":"symbol is required"}`, http.StatusBadRequest)
			return
		}
		tfVal := parseQueryInt(r, "tf", 60)
		limit := clampLimit(parseQueryInt(r, "limit", 200))

		streamKey := fmt.Sprintf("candle:%ds:%s", tfVal, symbol)
		upperBound := parseBefore(r.URL.Query().Get("before"))

		msgs, err := rdb.XRevRangeN(ctx, streamKey, upperBound, "-", int64(limit)).Result()
		if err != nil {
			json.NewEncoder(w).Encode([]CandleOut{})
			return
		}
		reverseMessages(msgs)

		candles := make([]CandleOut, 0, len(msgs))
		for _, msg := range msgs {
			dataStr, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			var c CandleOut
			if err := json.Unmarshal([]byte(dataStr), &c); err != nil {
				continue
			}
			if c.TS != "" {
				candles = append(candles, c)
			}
		}
		json.NewEncoder(w).Encode(candles)
	})

	// REST: historical indicator values from Redis streams
	mux.HandleFunc("/api/indicators/history", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		name := r.URL.Query().Get("name")
		symbol := r.URL.Query().Get("symbol")
		if name == "" || symbol == "" {
			http.Error(w, `{"error":"name and symbol are required"}`, http.StatusBadRequest)
			return
		}
		tfVal := parseQueryInt(r, "tf", 60)
		limit := clampLimit(parseQueryInt(r, "limit", 300))

		streamKey := fmt.Sprintf("ind:%s:%ds:%s", name, tfVal, symbol)
		upperBound := parseBefore(r.URL.Query().Get("before"))

		msgs, err := rdb.XRevRangeN(ctx, streamKey, upperBound, "-", int64(limit)).Result()
		if err != nil {
			json.NewEncoder(w).Encode([]IndPoint{})
			return
		}
		reverseMessages(msgs)

		points := make([]IndPoint, 0, len(msgs))
		for _, msg := range msgs {
			dataStr, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			var p IndPoint
			if err := json.Unmarshal([]byte(dataStr), &p); err != nil {
				continue
			}
			if p.TS != "" && len(p.Values) > 0 {
				points = append(points, p)
			}
		}
		json.NewEncoder(w).Encode(points)
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		redisOK := rdb.Ping(r.Context()).Err() == nil

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"redis":      redisOK,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func parseQueryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func clampLimit(limit int) int {
	if limit > 1000 {
		return 1000
	}
	return limit
}

// parseBefore converts a "before" RFC3339 timestamp to an exclusive XRevRange
// upper bound, or "+" when absent.
func parseBefore(beforeStr string) string {
	if beforeStr == "" {
		return "+"
	}
	if t, err := time.Parse(time.RFC3339Nano, beforeStr); err == nil {
		return fmt.Sprintf("%d-0", t.UnixMilli()-1)
	}
	if t, err := time.Parse(time.RFC3339, beforeStr); err == nil {
		return fmt.Sprintf("%d-0", t.UnixMilli()-1)
	}
	return "+"
}

func reverseMessages(msgs []goredis.XMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
