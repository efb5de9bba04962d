package redis

import (
	"context"
	"log"
	"sync"

	"indicore/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// During circuit-open state, indicator updates are buffered locally and
// flushed when the circuit closes again, so transient Redis outages do not
// drop confirmed results.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []model.IndicatorUpdate
	maxBuf int // max buffered updates before dropping oldest

	// Callbacks
	OnBuffer func(count int) // called when updates are buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered updates
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
// maxBufferSize <= 0 selects the default of 10000 updates.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.IndicatorUpdate, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteBatch writes indicator updates through the circuit breaker.
// If the circuit is open, confirmed updates are buffered locally; live
// updates are dropped since a stale preview has no value after recovery.
func (bw *BufferedWriter) WriteBatch(updates []model.IndicatorUpdate) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteBatch(bw.ctx, updates)
	})
	if err == ErrCircuitOpen {
		bw.bufferUpdates(updates)
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferUpdates(updates []model.IndicatorUpdate) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	buffered := 0
	for _, upd := range updates {
		if upd.Live {
			continue
		}
		if len(bw.buffer) >= bw.maxBuf {
			// Buffer full — drop oldest
			bw.buffer = bw.buffer[1:]
		}
		bw.buffer = append(bw.buffer, upd)
		buffered++
	}

	if buffered > 0 && bw.OnBuffer != nil {
		bw.OnBuffer(buffered)
	}
}

// flush replays all buffered updates through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]model.IndicatorUpdate, 0, 256)
	bw.mu.Unlock()

	// Replay in chunks to bound pipeline size
	const chunk = 256
	flushed := 0
	for start := 0; start < len(toFlush); start += chunk {
		end := start + chunk
		if end > len(toFlush) {
			end = len(toFlush)
		}
		if err := bw.writer.WriteBatch(bw.ctx, toFlush[start:end]); err != nil {
			log.Printf("[buffered-writer] flush chunk error: %v", err)
			continue
		}
		flushed += end - start
	}

	log.Printf("[buffered-writer] flushed %d buffered updates", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered updates waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
