package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
	"github.com/yhwang-dev/tradeshield/pkg/templates"
)

// analysisTemplate is the prompt template the evaluator renders per article
const analysisTemplate = "analysis_prompt.tmpl"

const analysisSystemPrompt = `You are a market intelligence analyst. Evaluate the news article ` +
	`and answer with a single JSON object, no prose, matching exactly this schema: ` +
	`{"sentiment":"POSITIVE|NEGATIVE|NEUTRAL","sentiment_score":<-1.0..1.0>,"confidence":<0.0..1.0>,` +
	`"impact":<0.0..1.0>,"urgency":"IMMEDIATE|HIGH|MEDIUM|LOW","risk_level":"LOW|MEDIUM|HIGH|CRITICAL",` +
	`"trading_actionable":<bool>,"related_tickers":[{"ticker":"SYM","sentiment":"POSITIVE|NEGATIVE|NEUTRAL","relevance":<0..100>}],` +
	`"summary":"<one sentence>"}`

// promptData is what the analysis template sees
type promptData struct {
	Article *models.Article
	Intent  string
}

// NewsEvaluator turns articles into structured analyses through the
// routed completion provider, dropping to the keyword parser when the
// provider fails or answers with malformed JSON.
type NewsEvaluator struct {
	completer       Completer
	router          *SemanticRouter
	renderer        templates.Renderer
	fallback        *FallbackParser
	fallbackEnabled bool
	defaults        CompletionConfig
}

// NewNewsEvaluator creates an evaluator around the configured provider
func NewNewsEvaluator(completer Completer, router *SemanticRouter, renderer templates.Renderer, cfg *config.AIConfig) *NewsEvaluator {
	return &NewsEvaluator{
		completer:       completer,
		router:          router,
		renderer:        renderer,
		fallback:        NewFallbackParser(),
		fallbackEnabled: cfg.FallbackEnabled,
		defaults: CompletionConfig{
			Provider:    cfg.Provider,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		},
	}
}

// Evaluate analyzes one article and returns the structured result.
// The returned analysis carries routing metadata for the audit trail.
func (e *NewsEvaluator) Evaluate(ctx context.Context, article *models.Article) (*models.Analysis, error) {
	route := e.router.Route(article)

	prompt, err := e.renderer.ExecuteTemplate(analysisTemplate, promptData{Article: article, Intent: route.Intent})
	if err != nil {
		return nil, fmt.Errorf("failed to render analysis prompt: %w", err)
	}

	reqCfg := e.defaults
	reqCfg.Provider = route.Provider
	reqCfg.Model = route.Model

	result, err := e.completer.Complete(ctx, CompletionRequest{
		System: analysisSystemPrompt,
		Prompt: prompt,
		Config: reqCfg,
	})
	if err != nil {
		if e.fallbackEnabled {
			logger.Warn("⚠️ Completion failed, using keyword fallback",
				zap.String("article_id", article.ID),
				zap.Error(err),
			)
			return e.fallback.Parse(article), nil
		}
		return nil, err
	}

	analysis, err := parseAnalysis(result.Text)
	if err != nil {
		if e.fallbackEnabled {
			logger.Warn("⚠️ Malformed analysis payload, using keyword fallback",
				zap.String("article_id", article.ID),
				zap.String("provider", result.Provider),
				zap.Error(err),
			)
			return e.fallback.Parse(article), nil
		}
		return nil, err
	}

	analysis.ID = uuid.New().String()
	analysis.ArticleID = article.ID
	analysis.CreatedAt = time.Now().UTC()
	analysis.Model = result.Model
	analysis.Provider = result.Provider
	analysis.TokensUsed = result.TotalTokens()
	analysis.CostUSD = result.CostUSD
	analysis.VerdictMultiplier = 1.0

	return analysis, nil
}

// parseAnalysis extracts the JSON object from the model answer and maps
// it into an Analysis, range-clamping the numeric fields.
func parseAnalysis(content string) (*models.Analysis, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in answer", ErrMalformedCompletion)
	}

	var payload struct {
		Sentiment         string  `json:"sentiment"`
		SentimentScore    float64 `json:"sentiment_score"`
		Confidence        float64 `json:"confidence"`
		Impact            float64 `json:"impact"`
		Urgency           string  `json:"urgency"`
		RiskLevel         string  `json:"risk_level"`
		TradingActionable bool    `json:"trading_actionable"`
		RelatedTickers    []struct {
			Ticker    string `json:"ticker"`
			Sentiment string `json:"sentiment"`
			Relevance int    `json:"relevance"`
		} `json:"related_tickers"`
		Summary string `json:"summary"`
	}

	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCompletion, err)
	}

	sentiment, ok := parseSentiment(payload.Sentiment)
	if !ok {
		return nil, fmt.Errorf("%w: unknown sentiment %q", ErrMalformedCompletion, payload.Sentiment)
	}

	mentions := make([]models.TickerMention, 0, len(payload.RelatedTickers))
	for _, rt := range payload.RelatedTickers {
		ticker := strings.ToUpper(strings.TrimSpace(rt.Ticker))
		if ticker == "" {
			continue
		}
		ms, ok := parseSentiment(rt.Sentiment)
		if !ok {
			ms = sentiment
		}
		mentions = append(mentions, models.TickerMention{
			Ticker:    ticker,
			Sentiment: ms,
			Relevance: clampInt(rt.Relevance, 0, 100),
		})
	}

	return &models.Analysis{
		Sentiment:         sentiment,
		SentimentScore:    clampFloat(payload.SentimentScore, -1, 1),
		Confidence:        clampFloat(payload.Confidence, 0, 1),
		Impact:            clampFloat(payload.Impact, 0, 1),
		Urgency:           parseUrgency(payload.Urgency),
		Risk:              parseRisk(payload.RiskLevel),
		TradingActionable: payload.TradingActionable,
		RelatedTickers:    mentions,
		Summary:           strings.TrimSpace(payload.Summary),
	}, nil
}

func parseSentiment(s string) (models.Sentiment, bool) {
	switch models.Sentiment(strings.ToUpper(strings.TrimSpace(s))) {
	case models.SentimentPositive:
		return models.SentimentPositive, true
	case models.SentimentNegative:
		return models.SentimentNegative, true
	case models.SentimentNeutral:
		return models.SentimentNeutral, true
	}
	return "", false
}

func parseUrgency(s string) models.Urgency {
	switch models.Urgency(strings.ToUpper(strings.TrimSpace(s))) {
	case models.UrgencyImmediate:
		return models.UrgencyImmediate
	case models.UrgencyHigh:
		return models.UrgencyHigh
	case models.UrgencyLow:
		return models.UrgencyLow
	default:
		return models.UrgencyMedium
	}
}

func parseRisk(s string) models.RiskLevel {
	switch models.RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case models.RiskLow:
		return models.RiskLow
	case models.RiskHigh:
		return models.RiskHigh
	case models.RiskCritical:
		return models.RiskCritical
	default:
		return models.RiskMedium
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
