package shadow

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// Repository handles database operations for shadow trades
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new shadow repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Save stores a new shadow trade
func (r *Repository) Save(ctx context.Context, s *models.ShadowTrade) error {
	violated := s.ViolatedArticles
	if violated == nil {
		// The column is NOT NULL; validator vetoes carry no citations
		violated = []string{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shadow_trades (
			id, proposal_id, ticker, action, rejection_reason, status,
			violated_articles, entry_price, current_price, virtual_pnl,
			virtual_pnl_pct, shares, tracking_days, rejected_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		s.ID,
		s.ProposalID,
		s.Ticker,
		s.Action,
		s.RejectionReason,
		s.Status,
		pq.Array(violated),
		s.EntryPrice,
		s.CurrentPrice,
		s.VirtualPnL,
		s.VirtualPnLPct,
		s.Shares,
		s.TrackingDays,
		s.RejectedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save shadow trade: %w", err)
	}

	return nil
}

// Update persists a fresh mark (and any status change)
func (r *Repository) Update(ctx context.Context, s *models.ShadowTrade) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE shadow_trades
		SET current_price = $2,
			virtual_pnl = $3,
			virtual_pnl_pct = $4,
			status = $5,
			closed_at = $6,
			updated_at = $7
		WHERE id = $1
	`,
		s.ID,
		s.CurrentPrice,
		s.VirtualPnL,
		s.VirtualPnLPct,
		s.Status,
		s.ClosedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update shadow trade: %w", err)
	}

	return nil
}

// ListActive returns every shadow still in TRACKING state
func (r *Repository) ListActive(ctx context.Context) ([]models.ShadowTrade, error) {
	return r.list(ctx, `
		SELECT id, proposal_id, ticker, action, rejection_reason, status,
			violated_articles, entry_price, current_price, virtual_pnl,
			virtual_pnl_pct, shares, tracking_days, rejected_at, closed_at, updated_at
		FROM shadow_trades
		WHERE status = $1
		ORDER BY rejected_at ASC
	`, models.ShadowTracking)
}

// CountActive returns the number of shadows still in TRACKING state
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM shadow_trades WHERE status = $1
	`, models.ShadowTracking).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active shadow trades: %w", err)
	}

	return count, nil
}

// ListSince returns shadows rejected at or after the cutoff
func (r *Repository) ListSince(ctx context.Context, since time.Time) ([]models.ShadowTrade, error) {
	return r.list(ctx, `
		SELECT id, proposal_id, ticker, action, rejection_reason, status,
			violated_articles, entry_price, current_price, virtual_pnl,
			virtual_pnl_pct, shares, tracking_days, rejected_at, closed_at, updated_at
		FROM shadow_trades
		WHERE rejected_at >= $1
		ORDER BY rejected_at DESC
	`, since)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]models.ShadowTrade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shadow trades: %w", err)
	}
	defer rows.Close()

	result := make([]models.ShadowTrade, 0)
	for rows.Next() {
		var s models.ShadowTrade
		var violated pq.StringArray

		err := rows.Scan(
			&s.ID, &s.ProposalID, &s.Ticker, &s.Action, &s.RejectionReason, &s.Status,
			&violated, &s.EntryPrice, &s.CurrentPrice, &s.VirtualPnL,
			&s.VirtualPnLPct, &s.Shares, &s.TrackingDays, &s.RejectedAt, &s.ClosedAt, &s.UpdatedAt,
		)
		if err != nil {
			continue
		}

		s.ViolatedArticles = violated
		result = append(result, s)
	}

	return result, nil
}
