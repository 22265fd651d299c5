package metrics

import "context"

// Row is a generic interface for any warehouse record
type Row interface {
	// Table returns ClickHouse table name for this row
	Table() string
	// Values returns row values in the same order as columns
	Values() []interface{}
}

// Sink writes rows to storage (ClickHouse, Postgres, etc.)
type Sink interface {
	// Write writes batch of rows to storage
	Write(ctx context.Context, table string, rows []Row) error
	// Close closes sink and flushes any remaining data
	Close() error
}

// Buffer manages batching and auto-flushing of rows
type Buffer interface {
	// Record adds row to buffer (thread-safe)
	Record(row Row) error
	// Flush flushes buffer to sink
	Flush(ctx context.Context) error
	// Size returns current buffer size
	Size() int
	// Close flushes and closes buffer
	Close(ctx context.Context) error
}
