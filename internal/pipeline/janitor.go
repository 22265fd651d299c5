package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
)

// ArticleJanitor is the retention surface of the article store
type ArticleJanitor interface {
	CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Janitor removes artifacts the cycle loop never touches again:
// articles past the retention window. It implements worker.Worker.
type Janitor struct {
	articles  ArticleJanitor
	retention time.Duration
}

// NewJanitor creates the retention worker
func NewJanitor(articles ArticleJanitor, retention time.Duration) *Janitor {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Janitor{articles: articles, retention: retention}
}

// Name implements worker.Worker
func (j *Janitor) Name() string {
	return "janitor"
}

// Run deletes articles older than the retention window
func (j *Janitor) Run(ctx context.Context) error {
	deleted, err := j.articles.CleanupOld(ctx, j.retention)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Info("🧹 old articles removed", zap.Int64("count", deleted))
	}
	return nil
}
