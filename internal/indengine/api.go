package indengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"indicore/internal/indicator"
)

// startHTTP launches the HTTP server for /reload and /healthz endpoints.
func (svc *Service) startHTTP(ctx context.Context) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/reload", svc.handleReload)
		mux.HandleFunc("/configs", svc.handleConfigs)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "ok")
		})
		log.Printf("[indengine] HTTP server on %s (/reload, /configs, /healthz)", svc.cfg.HTTPAddr)
		if err := http.ListenAndServe(svc.cfg.HTTPAddr, mux); err != nil {
			log.Printf("[indengine] HTTP server error: %v", err)
		}
	}()
}

// handleReload handles POST /reload for live config updates via HTTP.
// The body is the JSON form of per-TF specs:
//
//	[{"tf":60,"indicators":[{"kind":"SMA","params":{"period":"20"}}]}]
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var newConfigs []indicator.TFSpecs
	if err := json.NewDecoder(r.Body).Decode(&newConfigs); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := svc.applyConfigs(newConfigs); err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "ok",
		"timeframes": len(newConfigs),
	})
}

// handleConfigs returns the engine's active per-TF specs.
func (svc *Service) handleConfigs(w http.ResponseWriter, r *http.Request) {
	svc.engineMu.Lock()
	configs := svc.engine.Configs()
	svc.engineMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(configs)
}

// applyConfigs validates and applies a new configuration. The engine keeps
// the old configuration when validation fails; unchanged indicators keep
// their warm state across the swap, new ones seed lazily from the live
// stream.
func (svc *Service) applyConfigs(newConfigs []indicator.TFSpecs) error {
	if err := indicator.ValidateSpecs(svc.registry, newConfigs); err != nil {
		return err
	}

	svc.engineMu.Lock()
	err := svc.engine.Reload(newConfigs)
	svc.engineMu.Unlock()
	if err != nil {
		return err
	}

	svc.prom.ReloadsTotal.Inc()
	log.Printf("[indengine] reloaded %d timeframe configs", len(newConfigs))
	return nil
}

// startConfigSubscriber listens on Redis PubSub for dynamic indicator config
// updates. The payload uses the INDICATOR_CONFIGS spec format, applied to
// every enabled TF.
func (svc *Service) startConfigSubscriber(ctx context.Context) {
	go func() {
		pubsub := svc.redisReader.SubscribeChannel(ctx, "config:indicators")
		if pubsub == nil {
			log.Println("[indengine] WARNING: could not subscribe to config:indicators")
			return
		}
		defer pubsub.Close()
		log.Println("[indengine] subscribed to config:indicators for dynamic reload")

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				log.Printf("[indengine] received config update: %s", msg.Payload)
				specs := ParseIndicatorSpecs(msg.Payload)
				if err := svc.applyConfigs(BuildTFSpecs(svc.cfg.EnabledTFs, specs)); err != nil {
					log.Printf("[indengine] invalid config update: %v", err)
				}
			}
		}
	}()
}
