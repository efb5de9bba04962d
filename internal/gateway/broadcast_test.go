package gateway

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"
)

// buildEnvelope reproduces the exact hand-crafted JSON logic from
// Broadcaster.Broadcast so we can test envelope format independently of
// Redis/WS dependencies.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

// TestBroadcastEnvelopeFormat verifies the hand-crafted JSON envelope matches
// the expected structure:
// {"channel":"...","data":...,"ts":"...","seq":N,"channel_seq":N}
func TestBroadcastEnvelopeFormat(t *testing.T) {
	channel := "pub:candle:60s:BTCUSDT"
	data := []byte(`{"symbol":"BTCUSDT","tf":60,"ts":"2026-02-25T10:00:00Z","open":100,"high":105,"low":99,"close":103,"volume":500}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)
	var seq int64 = 42

	buf := buildEnvelope(channel, data, now, seq, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}

	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}
	if env.Seq != seq {
		t.Errorf("seq: got %d, want %d", env.Seq, seq)
	}
	if env.ChannelSeq != 7 {
		t.Errorf("channel_seq: got %d, want 7", env.ChannelSeq)
	}

	// Data should be parseable JSON
	var candle map[string]interface{}
	if err := json.Unmarshal(env.Data, &candle); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if _, ok := candle["ts"]; !ok {
		t.Error("data missing 'ts' field")
	}

	// TS should be valid RFC3339Nano
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Errorf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
}

// TestBroadcastEnvelopeIndicator tests envelope with an indicator channel.
func TestBroadcastEnvelopeIndicator(t *testing.T) {
	channel := "pub:ind:SMA_9:60s:BTCUSDT"
	data := []byte(`{"name":"SMA_9","symbol":"BTCUSDT","tf":60,"ts":"2026-02-25T10:00:00Z","values":[103.5],"signals":[0]}`)
	now := time.Now().UTC()

	buf := buildEnvelope(channel, data, now, 1, 1)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}

	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}

	var indData struct {
		Name   string    `json:"name"`
		Values []float64 `json:"values"`
	}
	if err := json.Unmarshal(env.Data, &indData); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if indData.Name != "SMA_9" {
		t.Errorf("name: got %q, want SMA_9", indData.Name)
	}
	if len(indData.Values) != 1 || indData.Values[0] != 103.5 {
		t.Errorf("values: got %v, want [103.5]", indData.Values)
	}
}

// TestBroadcastEnvelopeNestedData tests envelope with nested/complex data payload.
func TestBroadcastEnvelopeNestedData(t *testing.T) {
	channel := `pub:candle:1s:BTCUSDT`
	data := []byte(`{"note":"test","nested":{"a":1},"arr":[1,2,3]}`)

	buf := buildEnvelope(channel, data, time.Now().UTC(), 999, 1)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Seq != 999 {
		t.Errorf("seq: got %d, want 999", env.Seq)
	}
}

// TestChannelParsing tests the parseChannel function with various formats.
func TestChannelParsing(t *testing.T) {
	tests := []struct {
		name     string
		channel  string
		wantTF   int
		wantInd  string
		wantSym  string
		wantType string
		wantNil  bool
	}{
		{"candle_60s", "pub:candle:60s:BTCUSDT", 60, "", "BTCUSDT", "candle", false},
		{"candle_1s", "pub:candle:1s:ETHUSDT", 1, "", "ETHUSDT", "candle", false},
		{"candle_300s", "pub:candle:300s:BTCUSDT", 300, "", "BTCUSDT", "candle", false},
		{"indicator_SMA", "pub:ind:SMA_9:60s:BTCUSDT", 60, "SMA_9", "BTCUSDT", "indicator", false},
		{"indicator_RSI", "pub:ind:RSI_14:120s:ETHUSDT", 120, "RSI_14", "ETHUSDT", "indicator", false},
		{"indicator_MACD", "pub:ind:MACD_12_26_9:300s:BTCUSDT", 300, "MACD_12_26_9", "BTCUSDT", "indicator", false},
		{"invalid_garbage", "garbage", 0, "", "", "", true},
		{"invalid_short", "pub:candle", 0, "", "", "", true},
		{"invalid_extra_parts", "pub:candle:60s:BTCUSDT:extra", 0, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := parseChannel(tt.channel)
			if tt.wantNil {
				if parsed != nil {
					t.Errorf("expected nil, got %+v", parsed)
				}
				return
			}
			if parsed == nil {
				t.Fatal("expected non-nil parsed channel")
			}
			if parsed.tf != tt.wantTF {
				t.Errorf("tf: got %d, want %d", parsed.tf, tt.wantTF)
			}
			if parsed.symbol != tt.wantSym {
				t.Errorf("symbol: got %q, want %q", parsed.symbol, tt.wantSym)
			}
			if parsed.chType != tt.wantType {
				t.Errorf("chType: got %q, want %q", parsed.chType, tt.wantType)
			}
			if tt.wantInd != "" && parsed.indName != tt.wantInd {
				t.Errorf("indName: got %q, want %q", parsed.indName, tt.wantInd)
			}
		})
	}
}

// TestSubscriptionMatching covers symbol/TF scoping and indicator narrowing.
func TestSubscriptionMatching(t *testing.T) {
	sub := &ClientSubscription{Symbol: "BTCUSDT", TF: 60}

	if !subscriptionMatches(sub, parseChannel("pub:candle:60s:BTCUSDT")) {
		t.Error("candle on subscribed symbol/tf should match")
	}
	if !subscriptionMatches(sub, parseChannel("pub:ind:SMA_20:60s:BTCUSDT")) {
		t.Error("indicator with empty narrowing should match")
	}
	if subscriptionMatches(sub, parseChannel("pub:candle:300s:BTCUSDT")) {
		t.Error("wrong TF should not match")
	}
	if subscriptionMatches(sub, parseChannel("pub:candle:60s:ETHUSDT")) {
		t.Error("wrong symbol should not match")
	}

	narrowed := &ClientSubscription{Symbol: "BTCUSDT", TF: 60, Indicators: []string{"RSI_14"}}
	if subscriptionMatches(narrowed, parseChannel("pub:ind:SMA_20:60s:BTCUSDT")) {
		t.Error("indicator outside narrowed set should not match")
	}
	if !subscriptionMatches(narrowed, parseChannel("pub:ind:RSI_14:60s:BTCUSDT")) {
		t.Error("indicator in narrowed set should match")
	}
	if !subscriptionMatches(narrowed, parseChannel("pub:candle:60s:BTCUSDT")) {
		t.Error("candle channel ignores indicator narrowing")
	}
}

// TestClientMatchesChannel verifies the per-client filter including the
// no-subscriptions (receive everything) and non-data channel cases.
func TestClientMatchesChannel(t *testing.T) {
	c := &Client{subs: make(map[string]*ClientSubscription)}

	if !c.matchesChannel("pub:candle:60s:BTCUSDT") {
		t.Error("client with no subs should receive everything")
	}

	sub := &ClientSubscription{Symbol: "BTCUSDT", TF: 60}
	c.subs[sub.SubKey()] = sub

	if !c.matchesChannel("pub:candle:60s:BTCUSDT") {
		t.Error("subscribed channel should match")
	}
	if c.matchesChannel("pub:candle:60s:ETHUSDT") {
		t.Error("unsubscribed symbol should not match")
	}
	if !c.matchesChannel("not:a:data:channel:at:all") {
		t.Error("non-data channels are always delivered")
	}
}

// TestEnvelopeSeqMonotonic verifies sequence numbers are reflected correctly.
func TestEnvelopeSeqMonotonic(t *testing.T) {
	channel := "pub:candle:60s:BTCUSDT"
	data := []byte(`{}`)
	now := time.Now().UTC()

	for i := int64(1); i <= 100; i++ {
		buf := buildEnvelope(channel, data, now, i, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("seq=%d: invalid JSON: %v", i, err)
		}
		if env.Seq != i {
			t.Errorf("seq: got %d, want %d", env.Seq, i)
		}
	}
}

// TestBroadcaster_PerChannelSeq verifies that per-channel seq is included in
// the envelope and tracks independently across channels.
func TestBroadcaster_PerChannelSeq(t *testing.T) {
	channelA := "pub:candle:60s:BTCUSDT"
	channelB := "pub:ind:SMA_9:60s:BTCUSDT"
	data := []byte(`{}`)
	now := time.Now().UTC()

	// channel A gets channel_seq 1,2,3 and channel B gets 1,2
	var globalSeq int64

	for i := int64(1); i <= 3; i++ {
		globalSeq++
		buf := buildEnvelope(channelA, data, now, globalSeq, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("channelA seq=%d: invalid JSON: %v", i, err)
		}
		if env.ChannelSeq != i {
			t.Errorf("channelA channel_seq: got %d, want %d", env.ChannelSeq, i)
		}
		if env.Seq != globalSeq {
			t.Errorf("channelA global seq: got %d, want %d", env.Seq, globalSeq)
		}
	}

	for i := int64(1); i <= 2; i++ {
		globalSeq++
		buf := buildEnvelope(channelB, data, now, globalSeq, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("channelB seq=%d: invalid JSON: %v", i, err)
		}
		if env.ChannelSeq != i {
			t.Errorf("channelB channel_seq: got %d, want %d", env.ChannelSeq, i)
		}
		if env.Channel != channelB {
			t.Errorf("channelB: got %q, want %q", env.Channel, channelB)
		}
	}

	if globalSeq != 5 {
		t.Errorf("global seq: got %d, want 5", globalSeq)
	}
}
