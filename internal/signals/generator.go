package signals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// Generator turns analyzed news into concrete trading signals
type Generator struct {
	cfg *config.SignalsConfig
}

// NewGenerator creates a signal generator with the given thresholds
func NewGenerator(cfg *config.SignalsConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Generate builds a trading signal from one analysis. It returns false when
// the news does not clear the actionability bars or the cluster is cooling.
func (g *Generator) Generate(a *models.Analysis, now time.Time) (*models.TradingSignal, bool) {
	if a.CoolingUntil != nil && now.Before(*a.CoolingUntil) {
		logger.Debug("signal suppressed, cluster cooling",
			zap.String("article_id", a.ArticleID),
			zap.String("cluster_key", a.ClusterKey),
			zap.Time("cooling_until", *a.CoolingUntil),
		)
		return nil, false
	}

	if !a.TradingActionable {
		logger.Debug("signal skipped, not actionable", zap.String("article_id", a.ArticleID))
		return nil, false
	}
	if a.Impact < g.cfg.ImpactThreshold {
		logger.Debug("signal skipped, impact below threshold",
			zap.String("article_id", a.ArticleID),
			zap.Float64("impact", a.Impact),
			zap.Float64("threshold", g.cfg.ImpactThreshold),
		)
		return nil, false
	}

	action := decideAction(a.Sentiment, a.SentimentScore, g.cfg.SentimentThreshold)
	if action == models.ActionHold {
		logger.Debug("signal skipped, sentiment below threshold",
			zap.String("article_id", a.ArticleID),
			zap.Float64("sentiment_score", a.SentimentScore),
		)
		return nil, false
	}

	mention, ok := a.TopTicker(g.cfg.RelevanceFloor)
	if !ok {
		logger.Debug("signal skipped, no ticker above relevance floor",
			zap.String("article_id", a.ArticleID),
			zap.Int("relevance_floor", g.cfg.RelevanceFloor),
		)
		return nil, false
	}

	size := g.cfg.BasePositionSize * (0.5 + a.Impact) * riskMultiplier(a.Risk)
	if a.Urgency == models.UrgencyImmediate {
		size *= 0.8
	}
	if size > g.cfg.MaxPositionSize {
		size = g.cfg.MaxPositionSize
	}

	confidence := 0.4*a.Confidence + 0.3*a.Impact + 0.2*riskInverse(a.Risk) + 0.1*urgencyScore(a.Urgency)
	confidence = clamp01(confidence * a.VerdictMultiplier)
	if confidence < g.cfg.MinConfidence {
		logger.Debug("signal rejected, confidence below minimum",
			zap.String("article_id", a.ArticleID),
			zap.String("ticker", mention.Ticker),
			zap.Float64("confidence", confidence),
			zap.Float64("min_confidence", g.cfg.MinConfidence),
		)
		return nil, false
	}

	executionType := models.ExecutionLimit
	if a.Urgency == models.UrgencyImmediate || a.Urgency == models.UrgencyHigh {
		executionType = models.ExecutionMarket
	}

	signal := &models.TradingSignal{
		ID:            uuid.New().String(),
		CreatedAt:     now.UTC(),
		Ticker:        mention.Ticker,
		Action:        action,
		ExecutionType: executionType,
		ArticleID:     a.ArticleID,
		ClusterKey:    a.ClusterKey,
		Confidence:    confidence,
		PositionSize:  size,
		AutoExecute:   g.cfg.AutoExecuteEnabled && confidence >= g.cfg.AutoExecuteMinConfidence,
		Reasons:       buildReasons(a),
	}

	logger.Info("signal generated",
		zap.String("ticker", signal.Ticker),
		zap.String("action", string(signal.Action)),
		zap.String("execution_type", string(signal.ExecutionType)),
		zap.Float64("confidence", signal.Confidence),
		zap.Float64("position_size", signal.PositionSize),
		zap.Bool("auto_execute", signal.AutoExecute),
	)

	return signal, true
}

// decideAction maps sentiment onto a trade direction. A NEUTRAL label with
// an extreme score still crosses the threshold by sign.
func decideAction(label models.Sentiment, score, threshold float64) models.SignalAction {
	switch label {
	case models.SentimentPositive:
		if score >= threshold {
			return models.ActionBuy
		}
	case models.SentimentNegative:
		if score <= -threshold {
			return models.ActionSell
		}
	case models.SentimentNeutral:
		if score >= threshold {
			return models.ActionBuy
		}
		if score <= -threshold {
			return models.ActionSell
		}
	}
	return models.ActionHold
}

func riskMultiplier(r models.RiskLevel) float64 {
	switch r {
	case models.RiskLow:
		return 1.0
	case models.RiskHigh:
		return 0.5
	case models.RiskCritical:
		return 0.25
	default:
		return 0.75
	}
}

func riskInverse(r models.RiskLevel) float64 {
	switch r {
	case models.RiskLow:
		return 1.0
	case models.RiskHigh:
		return 0.4
	case models.RiskCritical:
		return 0.2
	default:
		return 0.7
	}
}

func urgencyScore(u models.Urgency) float64 {
	switch u {
	case models.UrgencyImmediate:
		return 0.9
	case models.UrgencyHigh:
		return 0.8
	case models.UrgencyLow:
		return 0.4
	default:
		return 0.6
	}
}

func buildReasons(a *models.Analysis) []string {
	reasons := []string{
		fmt.Sprintf("%s sentiment %.2f (confidence %.2f)", a.Sentiment, a.SentimentScore, a.Confidence),
		fmt.Sprintf("impact %.2f, risk %s, urgency %s", a.Impact, a.Risk, a.Urgency),
	}
	if a.Summary != "" {
		reasons = append(reasons, a.Summary)
	}
	if a.VerdictMultiplier != 1.0 {
		reasons = append(reasons, fmt.Sprintf("cluster multiplier %.1fx applied", a.VerdictMultiplier))
	}
	return reasons
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
