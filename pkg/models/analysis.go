package models

import "time"

// Sentiment represents the direction of a news evaluation
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
)

// Urgency represents how quickly news is expected to move the market
type Urgency string

const (
	UrgencyImmediate Urgency = "IMMEDIATE"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyMedium    Urgency = "MEDIUM"
	UrgencyLow       Urgency = "LOW"
)

// RiskLevel represents estimated downside risk of acting on news
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// TickerMention links an analysis to a tradable ticker
type TickerMention struct {
	Ticker    string    `json:"ticker"`
	Sentiment Sentiment `json:"sentiment"`
	Relevance int       `json:"relevance"` // 0-100
}

// Analysis represents the structured evaluation of one article
type Analysis struct {
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	CoolingUntil      *time.Time      `json:"cooling_until,omitempty" db:"cooling_until"`
	ID                string          `json:"id" db:"id"`
	ArticleID         string          `json:"article_id" db:"article_id"`
	Sentiment         Sentiment       `json:"sentiment" db:"sentiment"`
	Urgency           Urgency         `json:"urgency" db:"urgency"`
	Risk              RiskLevel       `json:"risk" db:"risk"`
	Summary           string          `json:"summary" db:"summary"`
	Model             string          `json:"model" db:"model"`
	Provider          string          `json:"provider" db:"provider"`
	ClusterKey        string          `json:"cluster_key,omitempty" db:"cluster_key"`
	RelatedTickers    []TickerMention `json:"related_tickers"`
	SentimentScore    float64         `json:"sentiment_score" db:"sentiment_score"` // -1..1
	Confidence        float64         `json:"confidence" db:"confidence"`           // 0..1
	Impact            float64         `json:"impact" db:"impact"`                   // 0..1
	VerdictMultiplier float64         `json:"verdict_multiplier" db:"verdict_multiplier"`
	CostUSD           float64         `json:"cost_usd" db:"cost_usd"`
	TokensUsed        int             `json:"tokens_used" db:"tokens_used"`
	TradingActionable bool            `json:"trading_actionable" db:"trading_actionable"`
	FallbackUsed      bool            `json:"fallback_used" db:"fallback_used"`
}

// TopTicker returns the mention with the highest relevance at or above the floor
func (a *Analysis) TopTicker(minRelevance int) (TickerMention, bool) {
	var best TickerMention
	found := false
	for _, m := range a.RelatedTickers {
		if m.Relevance < minRelevance {
			continue
		}
		if !found || m.Relevance > best.Relevance {
			best = m
			found = true
		}
	}
	return best, found
}
