package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// fallbackMaxConfidence caps keyword-derived analyses so they never
// clear the signal confidence gate on their own.
const fallbackMaxConfidence = 0.5

// FallbackParser produces a conservative keyword-based Analysis when
// the completion provider fails or returns an unparseable answer.
type FallbackParser struct {
	positiveWords map[string]float64
	negativeWords map[string]float64
	impactTopics  map[string]float64
	urgencyWords  map[string]models.Urgency
}

// NewFallbackParser creates a keyword analyzer
func NewFallbackParser() *FallbackParser {
	return &FallbackParser{
		positiveWords: buildPositiveWords(),
		negativeWords: buildNegativeWords(),
		impactTopics:  buildImpactTopics(),
		urgencyWords:  buildUrgencyWords(),
	}
}

// Parse derives an Analysis from keywords alone. Confidence is capped
// at 0.5 and risk pinned HIGH because nothing verified the text.
func (p *FallbackParser) Parse(article *models.Article) *models.Analysis {
	text := strings.ToLower(article.Text())

	score, matches := p.sentimentScore(text)
	impact, topic := p.impactScore(text)
	urgency := p.urgencyOf(text)

	sentiment := models.SentimentNeutral
	if score >= 0.25 {
		sentiment = models.SentimentPositive
	} else if score <= -0.25 {
		sentiment = models.SentimentNegative
	}

	confidence := 0.2 + 0.05*float64(matches)
	if confidence > fallbackMaxConfidence {
		confidence = fallbackMaxConfidence
	}

	mentions := make([]models.TickerMention, 0, len(article.Tickers))
	for _, t := range article.Tickers {
		mentions = append(mentions, models.TickerMention{
			Ticker:    strings.ToUpper(t),
			Sentiment: sentiment,
			Relevance: 75,
		})
	}

	summary := "keyword fallback: general market news"
	if topic != "" {
		summary = fmt.Sprintf("keyword fallback: %s", topic)
	}

	return &models.Analysis{
		ID:                uuid.New().String(),
		ArticleID:         article.ID,
		CreatedAt:         time.Now().UTC(),
		Sentiment:         sentiment,
		SentimentScore:    score,
		Confidence:        confidence,
		Impact:            impact,
		Urgency:           urgency,
		Risk:              models.RiskHigh,
		TradingActionable: false,
		RelatedTickers:    mentions,
		Summary:           summary,
		Model:             "keyword",
		Provider:          "fallback",
		VerdictMultiplier: 1.0,
		FallbackUsed:      true,
	}
}

// sentimentScore averages matched keyword weights into [-1, 1]
func (p *FallbackParser) sentimentScore(text string) (float64, int) {
	var score float64
	matches := 0

	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,!?;:\"'()")

		if w, ok := p.positiveWords[word]; ok {
			score += w
			matches++
		}
		if w, ok := p.negativeWords[word]; ok {
			score -= w
			matches++
		}
	}

	if matches == 0 {
		return 0, 0
	}

	normalized := score / float64(matches)
	if normalized > 1.0 {
		normalized = 1.0
	} else if normalized < -1.0 {
		normalized = -1.0
	}
	return normalized, matches
}

// impactScore takes the highest matched topic weight, default 0.3
func (p *FallbackParser) impactScore(text string) (float64, string) {
	impact := 0.3
	topic := ""

	for keyword, weight := range p.impactTopics {
		if strings.Contains(text, keyword) && weight > impact {
			impact = weight
			topic = keyword
		}
	}
	return impact, topic
}

// urgencyOf picks the highest matched urgency level, default MEDIUM
func (p *FallbackParser) urgencyOf(text string) models.Urgency {
	urgency := models.UrgencyMedium

	for keyword, u := range p.urgencyWords {
		if !strings.Contains(text, keyword) {
			continue
		}
		if u == models.UrgencyImmediate {
			return models.UrgencyImmediate
		}
		if u == models.UrgencyHigh && urgency != models.UrgencyImmediate {
			urgency = u
		}
		if u == models.UrgencyLow && urgency == models.UrgencyMedium {
			urgency = u
		}
	}
	return urgency
}

// buildPositiveWords returns bullish keywords for equities
func buildPositiveWords() map[string]float64 {
	return map[string]float64{
		"surge":      0.8,
		"soar":       0.8,
		"rally":      0.9,
		"jump":       0.7,
		"beat":       0.8,
		"beats":      0.8,
		"record":     0.6,
		"profit":     0.6,
		"gain":       0.6,
		"upgrade":    0.6,
		"upgraded":   0.6,
		"growth":     0.5,
		"strong":     0.5,
		"bullish":    1.0,
		"outperform": 0.7,
		"buyback":    0.6,
		"dividend":   0.4,
		"approval":   0.6,
		"approved":   0.6,
		"급등":         0.8,
		"호실적":        0.8,
		"상승":         0.6,
	}
}

// buildNegativeWords returns bearish keywords for equities
func buildNegativeWords() map[string]float64 {
	return map[string]float64{
		"crash":         1.0,
		"plunge":        0.9,
		"plunges":       0.9,
		"tumble":        0.8,
		"slump":         0.7,
		"miss":          0.8,
		"misses":        0.8,
		"loss":          0.7,
		"losses":        0.7,
		"downgrade":     0.7,
		"downgraded":    0.7,
		"bearish":       1.0,
		"lawsuit":       0.6,
		"probe":         0.6,
		"fraud":         1.0,
		"bankruptcy":    1.0,
		"recall":        0.7,
		"layoffs":       0.6,
		"investigation": 0.6,
		"weak":          0.5,
		"급락":            0.9,
		"하락":            0.6,
		"적자":            0.7,
	}
}

// buildImpactTopics returns coarse topics with impact magnitudes
func buildImpactTopics() map[string]float64 {
	return map[string]float64{
		"rate decision":     0.9,
		"fomc":              0.9,
		"federal reserve":   0.85,
		"central bank":      0.85,
		"기준금리":              0.85,
		"bankruptcy":        0.95,
		"merger":            0.8,
		"acquisition":       0.8,
		"earnings":          0.7,
		"guidance":          0.7,
		"실적":                0.7,
		"sec investigation": 0.85,
		"lawsuit":           0.6,
		"recall":            0.6,
		"downgrade":         0.65,
		"upgrade":           0.65,
		"buyback":           0.6,
		"ipo":               0.6,
		"cpi":               0.8,
		"inflation":         0.75,
		"jobs report":       0.75,
		"analyst":           0.35,
		"opinion":           0.2,
	}
}

// buildUrgencyWords maps phrases to urgency levels
func buildUrgencyWords() map[string]models.Urgency {
	return map[string]models.Urgency{
		"breaking":  models.UrgencyImmediate,
		"just in":   models.UrgencyImmediate,
		"halted":    models.UrgencyImmediate,
		"속보":        models.UrgencyImmediate,
		"긴급":        models.UrgencyImmediate,
		"announced": models.UrgencyHigh,
		"alert":     models.UrgencyHigh,
		"today":     models.UrgencyHigh,
		"opinion":   models.UrgencyLow,
		"outlook":   models.UrgencyLow,
		"weekly":    models.UrgencyLow,
	}
}
