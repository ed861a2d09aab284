// Package metering persists call records in batches off the request path.
package metering

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/metrics"
)

// BatchInserter persists call records. storage.CallRecordRepository satisfies it.
type BatchInserter interface {
	InsertBatch(ctx context.Context, records []domain.CallRecord) error
}

// Collector buffers call records in memory and flushes them to the store
// when the buffer reaches batchSize or every flushInterval. It is safe for
// concurrent use and Record never waits on the store.
type Collector struct {
	store         BatchInserter
	buffer        []domain.CallRecord
	mu            sync.Mutex
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration

	kick     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	stopped  chan struct{}
}

// NewCollector creates a Collector. Records beyond 10 batches of backlog
// are dropped oldest first.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		store:         store,
		buffer:        make([]domain.CallRecord, 0, batchSize),
		batchSize:     batchSize,
		maxBuffered:   batchSize * 10,
		flushInterval: flushInterval,
		kick:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Start flushes on a timer and on demand. It blocks until Stop is called
// or ctx is cancelled, then performs a final flush.
func (c *Collector) Start(ctx context.Context) {
	c.started.Store(true)
	defer close(c.stopped)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.kick:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		}
	}
}

// Record adds a call record to the buffer.
func (c *Collector) Record(rec domain.CallRecord) {
	c.mu.Lock()
	if len(c.buffer) >= c.maxBuffered {
		c.buffer = c.buffer[1:]
		metrics.MeteringFlushes.WithLabelValues("dropped").Inc()
	}
	c.buffer = append(c.buffer, rec)
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered records.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Stop signals Start to exit, waits for it, then flushes whatever was
// recorded after Start's last flush.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	if c.started.Load() {
		<-c.stopped
	}
	c.flush()
}

func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]domain.CallRecord, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for start := 0; start < len(batch); start += c.batchSize {
		end := min(start+c.batchSize, len(batch))
		if err := c.store.InsertBatch(ctx, batch[start:end]); err != nil {
			metrics.MeteringFlushes.WithLabelValues("error").Inc()
			slog.Error("Failed to flush call records", "count", end-start, "error", err)
			continue
		}
		metrics.MeteringFlushes.WithLabelValues("success").Inc()
	}
}
