package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository persists risk events for the audit trail
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new risk repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// RiskEvent represents a risk event record
type RiskEvent struct {
	ID          int64                  `db:"id"`
	EventType   string                 `db:"event_type"`
	Description string                 `db:"description"`
	Data        map[string]interface{} `db:"data"`
	CreatedAt   time.Time              `db:"created_at"`
}

// LogRiskEvent logs a risk event to database
func (r *Repository) LogRiskEvent(ctx context.Context, eventType, description string, data map[string]interface{}) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	query := `
		INSERT INTO risk_events (event_type, description, data, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query, eventType, description, dataJSON, time.Now()).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to log risk event: %w", err)
	}

	return nil
}

// GetRecentRiskEvents retrieves the most recent risk events
func (r *Repository) GetRecentRiskEvents(ctx context.Context, limit int) ([]RiskEvent, error) {
	query := `
		SELECT id, event_type, description, data, created_at
		FROM risk_events
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk events: %w", err)
	}
	defer rows.Close()

	events := make([]RiskEvent, 0)
	for rows.Next() {
		var event RiskEvent
		var dataJSON []byte

		if err := rows.Scan(&event.ID, &event.EventType, &event.Description, &dataJSON, &event.CreatedAt); err != nil {
			continue
		}

		if len(dataJSON) > 0 {
			_ = json.Unmarshal(dataJSON, &event.Data)
		}
		events = append(events, event)
	}

	return events, nil
}

// CountRiskEventsByType counts risk events of a type since a timestamp
func (r *Repository) CountRiskEventsByType(ctx context.Context, eventType string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM risk_events
		WHERE event_type = $1 AND created_at >= $2
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, eventType, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count risk events: %w", err)
	}

	return count, nil
}

// DeleteOldRiskEvents deletes risk events older than specified duration
func (r *Repository) DeleteOldRiskEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM risk_events
		WHERE created_at < $1
	`

	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old risk events: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}
