package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	activeConfigRedisKey = "gateway:active_config"
	configReloadChannel  = "config:indicators"
)

// ConfigStore manages the active indicator set and propagates changes: it
// persists the set to Redis, publishes a reload message for the compute
// engine, and broadcasts a config_update to connected WS clients.
type ConfigStore struct {
	hub *Hub
	rdb *goredis.Client
}

// NewConfigStore creates a ConfigStore backed by the given Hub.
func NewConfigStore(hub *Hub, rdb *goredis.Client) *ConfigStore {
	return &ConfigStore{hub: hub, rdb: rdb}
}

// Load restores the active indicator set from Redis (if available).
// Called once during gateway startup. Returns true if restored.
func (cs *ConfigStore) Load(ctx context.Context) bool {
	data, err := cs.rdb.Get(ctx, activeConfigRedisKey).Result()
	if err != nil {
		return false
	}
	var specs []string
	if json.Unmarshal([]byte(data), &specs) != nil {
		return false
	}
	cs.hub.mu.Lock()
	cs.hub.activeSpecs = specs
	cs.hub.mu.Unlock()
	log.Printf("[config_store] restored active indicator set from Redis: %d specs", len(specs))
	return true
}

// Get returns the current active indicator spec strings (e.g. "SMA:20").
func (cs *ConfigStore) Get() []string {
	cs.hub.mu.RLock()
	defer cs.hub.mu.RUnlock()
	return append([]string(nil), cs.hub.activeSpecs...)
}

// Set updates the active indicator set, persists it, publishes a reload
// message for the engine, and broadcasts the change to all WS clients.
func (cs *ConfigStore) Set(ctx context.Context, specs []string) {
	cleaned := make([]string, 0, len(specs))
	for _, s := range specs {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}

	cs.hub.mu.Lock()
	cs.hub.activeSpecs = cleaned
	cs.hub.mu.Unlock()

	if cs.rdb != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if data, err := json.Marshal(cleaned); err == nil {
			if err := cs.rdb.Set(pctx, activeConfigRedisKey, data, 0).Err(); err != nil {
				log.Printf("[config_store] WARNING: failed to persist active config: %v", err)
			}
		}
		// The engine parses the comma-joined spec list and reloads
		payload := strings.Join(cleaned, ",")
		if err := cs.rdb.Publish(pctx, configReloadChannel, payload).Err(); err != nil {
			log.Printf("[config_store] WARNING: failed to publish reload: %v", err)
		}
	}

	envelope, _ := json.Marshal(map[string]interface{}{
		"type":       "config_update",
		"indicators": cleaned,
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	})

	cs.hub.mu.RLock()
	defer cs.hub.mu.RUnlock()
	for client := range cs.hub.clients {
		select {
		case client.send <- envelope:
		default:
		}
	}
}
