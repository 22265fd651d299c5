package articles

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// Repository handles database operations for articles and their analyses
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new article repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Save stores collected articles (upsert on source+url). Articles are
// immutable after collection, so conflicts only refresh the sentiment
// some collectors deliver late.
func (r *Repository) Save(ctx context.Context, articles []models.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO articles (
			id, source, title, body, url, status,
			tickers, sentiment, published_at, collected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source, url) DO UPDATE SET
			sentiment = COALESCE(EXCLUDED.sentiment, articles.sentiment)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	saved := 0
	for _, a := range articles {
		status := a.Status
		if status == "" {
			status = models.ArticlePending
		}
		collected := a.CollectedAt
		if collected.IsZero() {
			collected = time.Now()
		}
		tickers := a.Tickers
		if tickers == nil {
			// The column is NOT NULL
			tickers = []string{}
		}

		_, err := stmt.ExecContext(ctx,
			a.ID,
			a.Source,
			a.Title,
			a.Body,
			a.URL,
			status,
			pq.Array(tickers),
			a.Sentiment,
			a.PublishedAt,
			collected,
		)

		if err == nil {
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	return saved, nil
}

// FindUnprocessed returns pending articles without an analysis whose
// collection time falls inside the lookback window, newest published
// first
func (r *Repository) FindUnprocessed(ctx context.Context, limit int, since time.Duration) ([]models.Article, error) {
	cutoff := time.Now().Add(-since)

	query := `
		SELECT id, source, title, body, url, status, tickers, sentiment, published_at, collected_at
		FROM articles
		WHERE analysis_id IS NULL
			AND status = $1
			AND collected_at > $2
		ORDER BY published_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, models.ArticlePending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed articles: %w", err)
	}
	defer rows.Close()

	result := make([]models.Article, 0)
	for rows.Next() {
		var a models.Article
		var tickers pq.StringArray

		err := rows.Scan(
			&a.ID, &a.Source, &a.Title, &a.Body, &a.URL,
			&a.Status, &tickers, &a.Sentiment, &a.PublishedAt, &a.CollectedAt,
		)
		if err != nil {
			continue
		}

		a.Tickers = tickers
		result = append(result, a)
	}

	return result, nil
}

// Load fetches one article by id; returns nil when absent
func (r *Repository) Load(ctx context.Context, id string) (*models.Article, error) {
	var a models.Article
	var tickers pq.StringArray

	err := r.db.QueryRowContext(ctx, `
		SELECT id, source, title, body, url, status, tickers, sentiment, published_at, collected_at
		FROM articles
		WHERE id = $1
	`, id).Scan(
		&a.ID, &a.Source, &a.Title, &a.Body, &a.URL,
		&a.Status, &tickers, &a.Sentiment, &a.PublishedAt, &a.CollectedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article: %w", err)
	}

	a.Tickers = tickers
	return &a, nil
}

// MarkAnalyzed persists the analysis and flips the article to analyzed
// in one transaction, so a re-run never re-analyses the same article
func (r *Repository) MarkAnalyzed(ctx context.Context, articleID string, analysis *models.Analysis) error {
	tickersJSON, err := json.Marshal(analysis.RelatedTickers)
	if err != nil {
		return fmt.Errorf("failed to marshal related tickers: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (
			id, article_id, sentiment, sentiment_score, confidence,
			urgency, impact, risk, summary, trading_actionable,
			related_tickers, verdict_multiplier, cluster_key, cooling_until,
			model, provider, tokens_used, cost_usd, fallback_used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		analysis.ID,
		articleID,
		analysis.Sentiment,
		analysis.SentimentScore,
		analysis.Confidence,
		analysis.Urgency,
		analysis.Impact,
		analysis.Risk,
		analysis.Summary,
		analysis.TradingActionable,
		tickersJSON,
		analysis.VerdictMultiplier,
		analysis.ClusterKey,
		analysis.CoolingUntil,
		analysis.Model,
		analysis.Provider,
		analysis.TokensUsed,
		analysis.CostUSD,
		analysis.FallbackUsed,
		analysis.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE articles
		SET status = $2, analysis_id = $3
		WHERE id = $1 AND analysis_id IS NULL
	`, articleID, models.ArticleAnalyzed, analysis.ID)
	if err != nil {
		return fmt.Errorf("failed to mark article analyzed: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("article %s already analyzed", articleID)
	}

	return tx.Commit()
}

// MarkFailed flags an article whose analysis could not be produced
func (r *Repository) MarkFailed(ctx context.Context, articleID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE articles
		SET status = $2
		WHERE id = $1
	`, articleID, models.ArticleFailed)
	if err != nil {
		return fmt.Errorf("failed to mark article failed: %w", err)
	}

	return nil
}

// CleanupOld removes articles older than the retention window
func (r *Repository) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM articles
		WHERE collected_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old articles: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}
