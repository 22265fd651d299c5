package clickhouse

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/metrics"
)

// Insert statements per warehouse table. Column order must match Row.Values().
var insertStatements = map[string]string{
	"analysis_audit": `
		INSERT INTO analysis_audit
		(timestamp, article_id, source, source_tier, provider, model, sentiment, urgency,
		 cluster_key, sentiment_score, confidence, impact, multiplier, cost_usd, tokens_used, fallback_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
	"pipeline_cycles": `
		INSERT INTO pipeline_cycles
		(started_at, finished_at, cycle_id, articles_fetched, duplicates, low_quality, analyzed,
		 fallback_analyses, signals_generated, signals_approved, signals_rejected, tokens_used, cost_usd, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
	"shadow_marks": `
		INSERT INTO shadow_marks
		(timestamp, shadow_id, ticker, action, entry_price, current_price,
		 virtual_pnl, virtual_pnl_pct, defensive_win, closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
}

// Sink writes audit rows to the ClickHouse warehouse
type Sink struct {
	db *sqlx.DB
}

// NewSink creates new ClickHouse sink
func NewSink(db *sqlx.DB) *Sink {
	return &Sink{db: db}
}

// Write inserts a batch of rows into the given warehouse table
func (s *Sink) Write(ctx context.Context, table string, rows []metrics.Row) error {
	if len(rows) == 0 {
		return nil
	}

	query, ok := insertStatements[table]
	if !ok {
		return fmt.Errorf("unknown warehouse table: %s", table)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Values()...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert %s row: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("wrote rows to ClickHouse",
		zap.String("table", table),
		zap.Int("count", len(rows)),
	)

	return nil
}

// Close is a no-op, the connection is owned by the caller
func (s *Sink) Close() error {
	return nil
}
