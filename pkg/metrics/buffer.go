package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
)

// BufferedSink manages batched warehouse rows with auto-flush
type BufferedSink struct {
	sink        Sink
	buffer      map[string][]Row
	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	batchSize   int
	bufferMu    sync.RWMutex
}

// BufferConfig configures the row buffer
type BufferConfig struct {
	Sink          Sink
	BatchSize     int           // Flush when a table buffer reaches this size
	FlushInterval time.Duration // Auto-flush interval
}

// NewBufferedSink creates new buffered sink
func NewBufferedSink(cfg BufferConfig) *BufferedSink {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	bs := &BufferedSink{
		sink:        cfg.Sink,
		buffer:      make(map[string][]Row),
		batchSize:   cfg.BatchSize,
		flushTicker: time.NewTicker(cfg.FlushInterval),
		stopCh:      make(chan struct{}),
	}

	bs.wg.Add(1)
	go bs.autoFlush()

	logger.Info("warehouse buffer initialized",
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("flush_interval", cfg.FlushInterval),
	)

	return bs
}

// Record adds row to buffer (thread-safe)
func (bs *BufferedSink) Record(row Row) error {
	if row == nil {
		return fmt.Errorf("row is nil")
	}

	table := row.Table()
	if table == "" {
		return fmt.Errorf("row table name is empty")
	}

	bs.bufferMu.Lock()
	defer bs.bufferMu.Unlock()

	bs.buffer[table] = append(bs.buffer[table], row)

	if len(bs.buffer[table]) >= bs.batchSize {
		logger.Debug("batch size reached, flushing",
			zap.String("table", table),
			zap.Int("size", len(bs.buffer[table])),
		)
		// Flush in background to avoid blocking the caller
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := bs.Flush(ctx); err != nil {
				logger.Error("auto-flush failed", zap.Error(err))
			}
		}()
	}

	return nil
}

// Flush flushes all buffered rows to the sink
func (bs *BufferedSink) Flush(ctx context.Context) error {
	bs.bufferMu.Lock()

	toFlush := make(map[string][]Row)
	for table, rows := range bs.buffer {
		if len(rows) > 0 {
			toFlush[table] = rows
			bs.buffer[table] = nil
		}
	}
	bs.bufferMu.Unlock()

	if len(toFlush) == 0 {
		return nil
	}

	var failed int
	for table, rows := range toFlush {
		if err := bs.sink.Write(ctx, table, rows); err != nil {
			logger.Error("failed to flush rows",
				zap.String("table", table),
				zap.Int("count", len(rows)),
				zap.Error(err),
			)
			failed++
			continue
		}
		logger.Debug("rows flushed",
			zap.String("table", table),
			zap.Int("count", len(rows)),
		)
	}

	if failed > 0 {
		return fmt.Errorf("flush failed for %d tables", failed)
	}

	return nil
}

// Size returns current buffer size across all tables
func (bs *BufferedSink) Size() int {
	bs.bufferMu.RLock()
	defer bs.bufferMu.RUnlock()

	total := 0
	for _, rows := range bs.buffer {
		total += len(rows)
	}
	return total
}

// Close gracefully shuts down buffer and flushes remaining rows
func (bs *BufferedSink) Close(ctx context.Context) error {
	logger.Info("closing warehouse buffer...")

	close(bs.stopCh)
	bs.flushTicker.Stop()
	bs.wg.Wait()

	if err := bs.Flush(ctx); err != nil {
		logger.Error("final flush failed", zap.Error(err))
		return err
	}

	if err := bs.sink.Close(); err != nil {
		logger.Error("sink close failed", zap.Error(err))
		return err
	}

	logger.Info("✅ warehouse buffer closed")
	return nil
}

// autoFlush periodically flushes buffer
func (bs *BufferedSink) autoFlush() {
	defer bs.wg.Done()

	for {
		select {
		case <-bs.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := bs.Flush(ctx); err != nil {
				logger.Warn("periodic flush failed", zap.Error(err))
			}
			cancel()

		case <-bs.stopCh:
			return
		}
	}
}
