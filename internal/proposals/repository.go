package proposals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// ErrInvalidTransition means the requested status change violates the
// proposal lifecycle
var ErrInvalidTransition = errors.New("invalid proposal status transition")

// Repository handles database operations for trade proposals
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new proposal repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Save stores a new proposal
func (r *Repository) Save(ctx context.Context, p *models.Proposal) error {
	violated := p.ViolatedArticles
	if violated == nil {
		// The column is NOT NULL; vetoes without rule citations store
		// an empty array
		violated = []string{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO proposals (
			id, signal_id, article_id, ticker, action, rationale,
			status, rejection_reason, consensus_level, market_regime,
			violated_articles, target_price, position_value, order_value,
			shares, confidence, vix, is_constitutional, is_approved,
			created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		p.ID,
		p.SignalID,
		p.ArticleID,
		p.Ticker,
		p.Action,
		p.Rationale,
		p.Status,
		p.RejectionReason,
		p.ConsensusLevel,
		p.MarketRegime,
		pq.Array(violated),
		p.TargetPrice,
		p.PositionValue,
		p.OrderValue,
		p.Shares,
		p.Confidence,
		p.VIX,
		p.IsConstitutional,
		p.IsApproved,
		p.CreatedAt,
		p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}

	return nil
}

// UpdateStatus moves a proposal through its lifecycle. The current row
// is locked, the transition is checked, and decision metadata is
// stamped in the same transaction.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.ProposalStatus, metadata map[string]string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.Proposal
	err = tx.QueryRowContext(ctx, `
		SELECT id, status FROM proposals WHERE id = $1 FOR UPDATE
	`, id).Scan(&current.ID, &current.Status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("proposal %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to lock proposal: %w", err)
	}

	if !current.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	reason := metadata["rejection_reason"]
	_, err = tx.ExecContext(ctx, `
		UPDATE proposals
		SET status = $2,
			decided_at = $3,
			rejection_reason = CASE WHEN $4 <> '' THEN $4 ELSE rejection_reason END,
			is_approved = ($2 = 'APPROVED' OR $2 = 'EXECUTED') OR is_approved
		WHERE id = $1
	`, id, status, time.Now(), reason)
	if err != nil {
		return fmt.Errorf("failed to update proposal status: %w", err)
	}

	return tx.Commit()
}

// Filter narrows List results; zero values mean "any"
type Filter struct {
	Status models.ProposalStatus
	Ticker string
	Since  time.Time
	Limit  int
}

// List returns proposals matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter Filter) ([]models.Proposal, error) {
	query := `
		SELECT id, signal_id, article_id, ticker, action, rationale,
			status, rejection_reason, consensus_level, market_regime,
			violated_articles, target_price, position_value, order_value,
			shares, confidence, vix, is_constitutional, is_approved,
			created_at, expires_at, decided_at
		FROM proposals
		WHERE 1=1
	`
	args := make([]interface{}, 0, 4)

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Ticker != "" {
		args = append(args, filter.Ticker)
		query += fmt.Sprintf(" AND ticker = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	result := make([]models.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			continue
		}
		result = append(result, *p)
	}

	return result, nil
}

// GetByID fetches one proposal; returns nil when absent
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, signal_id, article_id, ticker, action, rationale,
			status, rejection_reason, consensus_level, market_regime,
			violated_articles, target_price, position_value, order_value,
			shares, confidence, vix, is_constitutional, is_approved,
			created_at, expires_at, decided_at
		FROM proposals
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	return scanProposal(rows)
}

// ExpirePending flips pending proposals past their decision window to
// EXPIRED; returns how many expired
func (r *Repository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE proposals
		SET status = $1, decided_at = $2
		WHERE status = $3 AND expires_at < $2
	`, models.ProposalExpired, now, models.ProposalPending)
	if err != nil {
		return 0, fmt.Errorf("failed to expire proposals: %w", err)
	}

	expired, _ := result.RowsAffected()
	return expired, nil
}

// CountExecutedSince counts executed trades after the cutoff; feeds the
// daily and weekly frequency checks
func (r *Repository) CountExecutedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM proposals
		WHERE status = $1 AND decided_at >= $2
	`, models.ProposalExecuted, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executed proposals: %w", err)
	}

	return count, nil
}

// CountExecutedTotal counts every executed trade since inception
func (r *Repository) CountExecutedTotal(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM proposals
		WHERE status = $1
	`, models.ProposalExecuted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executed proposals: %w", err)
	}

	return count, nil
}

func scanProposal(rows *sql.Rows) (*models.Proposal, error) {
	var p models.Proposal
	var violated pq.StringArray

	err := rows.Scan(
		&p.ID, &p.SignalID, &p.ArticleID, &p.Ticker, &p.Action, &p.Rationale,
		&p.Status, &p.RejectionReason, &p.ConsensusLevel, &p.MarketRegime,
		&violated, &p.TargetPrice, &p.PositionValue, &p.OrderValue,
		&p.Shares, &p.Confidence, &p.VIX, &p.IsConstitutional, &p.IsApproved,
		&p.CreatedAt, &p.ExpiresAt, &p.DecidedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ViolatedArticles = violated
	return &p, nil
}
