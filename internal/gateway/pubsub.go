package gateway

import (
	"context"
	"log"
)

// PubSubRouter manages Redis PubSub subscriptions and routes messages
// to the broadcaster for fan-out to WebSocket clients.
type PubSubRouter struct {
	hub *Hub
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{hub: hub}
}

// Run pattern-subscribes to every candle and indicator channel and routes
// messages to the broadcaster. Symbols appear and disappear dynamically, so
// patterns beat maintaining an explicit channel list.
// Blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	pubsub := r.hub.Rdb.PSubscribe(ctx, "pub:ind:*", "pub:candle:*")
	defer pubsub.Close()

	log.Println("[gateway] subscribed to pub:ind:* and pub:candle:* patterns")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.hub.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
