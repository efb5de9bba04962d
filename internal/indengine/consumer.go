package indengine

import (
	"context"
	"log"
	"time"

	"indicore/internal/model"
)

// startConsumer starts the Redis stream XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go func() {
		if err := svc.redisReader.ConsumeCandles(ctx, svc.streams, svc.candleCh); err != nil {
			log.Printf("[indengine] consumer error: %v", err)
		}
	}()
}

// startPELReclaimer starts periodic reclamation of stale PEL messages.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go svc.redisReader.StartPELReclaimer(ctx, svc.streams,
		svc.cfg.ConsumerGroup, svc.cfg.ConsumerName,
		time.Duration(svc.cfg.PELIntervalS)*time.Second,
		svc.cfg.PELMinIdleMs, svc.candleCh,
		func(count int) {
			svc.prom.PELMessagesReclaimed.Add(float64(count))
			log.Printf("[indengine] reclaimed %d stale PEL messages", count)
		})
	log.Printf("[indengine] PEL reclaimer started (interval=%ds, minIdle=%dms)",
		svc.cfg.PELIntervalS, svc.cfg.PELMinIdleMs)
}

// processLoop consumes candles from the channel and computes indicators.
// Updates are handed to the writer loop over the SPSC ring so computation
// never blocks on Redis I/O; completed candles are also forwarded to the
// SQLite writer.
func (svc *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-svc.candleCh:
			if !ok {
				return
			}
			if c.Forming {
				continue
			}

			svc.prom.CandlesConsumed.Inc()
			svc.health.SetLastCandleTime(c.TS)

			start := time.Now()
			svc.engineMu.Lock()
			updates, err := svc.engine.Process(c)
			svc.engineMu.Unlock()
			elapsed := time.Since(start)

			svc.prom.ComputeDur.Observe(elapsed.Seconds())
			if err != nil {
				svc.prom.InitFailures.Inc()
				log.Printf("[indengine] process %s: %v", c.Key(), err)
			}
			if len(updates) > 0 {
				svc.prom.UpdatesTotal.WithLabelValues(model.Itoa(c.TF)).Add(float64(len(updates)))
				svc.prom.E2ELatency.Observe(time.Since(c.TS).Seconds())
			}

			for _, upd := range updates {
				if !svc.updateRing.Push(upd) {
					svc.prom.RingBufOverflow.Inc()
				}
			}

			if svc.sqlWriter != nil {
				select {
				case svc.sqliteCh <- c:
				default:
					// SQLite persistence is best-effort; never block the hot path
				}
			}
		}
	}
}

// writerLoop drains the update ring and flushes batches to Redis.
func (svc *Service) writerLoop(ctx context.Context) {
	const maxBatch = 256
	batch := make([]model.IndicatorUpdate, 0, maxBatch)

	for {
		if ctx.Err() != nil {
			return
		}

		batch = batch[:0]
		for len(batch) < maxBatch {
			upd, ok := svc.updateRing.Pop()
			if !ok {
				break
			}
			batch = append(batch, upd)
		}

		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}

		start := time.Now()
		if err := svc.redisWriter.WriteBatch(batch); err != nil {
			log.Printf("[indengine] redis write error: %v", err)
		}
		svc.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
	}
}
