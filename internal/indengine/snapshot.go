package indengine

import (
	"context"
	"log"
	"strconv"
	"time"

	"indicore/internal/indicator"
)

// snapshotLoop periodically saves engine state to Redis and SQLite.
func (svc *Service) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(svc.cfg.SnapshotIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.engineMu.Lock()
			snap, err := indicator.SnapshotEngine(svc.engine, lastStreamID())
			svc.engineMu.Unlock()
			if err != nil {
				log.Printf("[indengine] snapshot error: %v", err)
				continue
			}

			// Save to Redis
			if err := svc.redisReader.WriteSnapshot(ctx, svc.cfg.SnapshotKey, snap); err != nil {
				log.Printf("[indengine] redis snapshot write error: %v", err)
			}

			// Save to SQLite
			if svc.sqlWriter != nil {
				start := time.Now()
				if err := svc.sqlWriter.SaveSnapshot(snap); err != nil {
					log.Printf("[indengine] sqlite snapshot write error: %v", err)
				}
				svc.prom.SQLiteCommitDur.Observe(time.Since(start).Seconds())
			}

			svc.prom.SnapshotsTotal.Inc()
			log.Printf("[indengine] checkpoint saved (%d series)", len(snap.Series))
		}
	}
}

// lastStreamID returns a time-based stream ID marker for snapshots, so a
// restart can XRANGE everything recorded after the checkpoint.
func lastStreamID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-0"
}
