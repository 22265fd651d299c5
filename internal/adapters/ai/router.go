package ai

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// Routing intents. Breaking news trades depth for latency, earnings and
// macro events get the stronger model tier.
const (
	IntentBreakingNews = "breaking_news"
	IntentEarnings     = "earnings_analysis"
	IntentMacroEvent   = "macro_event"
	IntentGeneral      = "general"
)

// Route is a routing recommendation for one analysis request
type Route struct {
	Intent          string
	Provider        string
	Model           string
	EstimatedTokens int
	EstimatedCost   float64
}

var fastModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-5-haiku",
	"gemini":    "gemini-1.5-flash",
	"glm":       "glm-4-air",
}

var deepModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-3-5-sonnet",
	"gemini":    "gemini-1.5-pro",
	"glm":       "glm-4-plus",
}

var breakingTokens = []string{"breaking", "urgent", "just in", "속보", "긴급"}

var earningsTokens = []string{
	"earnings", "quarterly", "revenue", "profit", "eps", "guidance",
	"beats", "misses", "실적", "분기",
}

var macroTokens = []string{
	"fed", "fomc", "cpi", "inflation", "interest rate", "rate decision",
	"jobs report", "nonfarm", "gdp", "central bank", "기준금리", "금리", "고용",
}

// SemanticRouter picks intent, provider and model for an article and
// estimates the token and dollar cost of analyzing it. Tool definition
// overhead is computed once per intent and cached, so repeated analyses
// of the same shape do not re-pay the estimate work.
type SemanticRouter struct {
	defaults CompletionConfig

	mu       sync.RWMutex
	overhead map[string]int
}

// NewSemanticRouter creates a router around the configured defaults
func NewSemanticRouter(defaults CompletionConfig) *SemanticRouter {
	return &SemanticRouter{
		defaults: defaults,
		overhead: make(map[string]int),
	}
}

// Route returns a deterministic recommendation for the article
func (r *SemanticRouter) Route(article *models.Article) Route {
	intent := classifyIntent(article)
	provider, model := r.pickModel(intent)

	promptTokens := len(article.Text())/4 + r.intentOverhead(intent)
	maxCompletion := r.defaults.MaxTokens

	return Route{
		Intent:          intent,
		Provider:        provider,
		Model:           model,
		EstimatedTokens: promptTokens + maxCompletion,
		EstimatedCost:   costOf(model, promptTokens, maxCompletion),
	}
}

// pickModel maps intent to a model tier within the configured provider.
// Mock and local providers always keep the configured model.
func (r *SemanticRouter) pickModel(intent string) (string, string) {
	provider := r.defaults.Provider

	switch intent {
	case IntentBreakingNews:
		if m, ok := fastModels[provider]; ok {
			return provider, m
		}
	case IntentEarnings, IntentMacroEvent:
		if m, ok := deepModels[provider]; ok {
			return provider, m
		}
	}
	return provider, r.defaults.Model
}

// intentOverhead returns the prompt token overhead of the response
// schema and per-intent instructions, cached after first use.
func (r *SemanticRouter) intentOverhead(intent string) int {
	r.mu.RLock()
	n, ok := r.overhead[intent]
	r.mu.RUnlock()
	if ok {
		return n
	}

	n = len(toolDefinition(intent)) / 4

	r.mu.Lock()
	r.overhead[intent] = n
	r.mu.Unlock()
	return n
}

// toolDefinition renders the JSON response contract the prompt carries
// for a given intent. Only its length matters to the router.
func toolDefinition(intent string) string {
	base := `{"sentiment":"POSITIVE|NEGATIVE|NEUTRAL","sentiment_score":-1.0,"confidence":0.0,` +
		`"impact":0.0,"urgency":"IMMEDIATE|HIGH|MEDIUM|LOW","risk_level":"LOW|MEDIUM|HIGH|CRITICAL",` +
		`"trading_actionable":false,"related_tickers":[{"ticker":"","sentiment":"","relevance":0}],"summary":""}`

	var guidance string
	switch intent {
	case IntentBreakingNews:
		guidance = "Weigh recency over depth. Flag urgency IMMEDIATE when the event is still unfolding."
	case IntentEarnings:
		guidance = "Compare reported figures against expectations. Quantify surprise direction in sentiment_score."
	case IntentMacroEvent:
		guidance = "Consider second-order effects on rate-sensitive sectors before scoring impact."
	default:
		guidance = "Score conservatively when the article is opinion or aggregation."
	}

	return fmt.Sprintf("%s\n%s", base, guidance)
}

// classifyIntent buckets the article by title keywords, first match wins
func classifyIntent(article *models.Article) string {
	title := strings.ToLower(article.Title)

	for _, tok := range breakingTokens {
		if strings.Contains(title, tok) {
			return IntentBreakingNews
		}
	}
	for _, tok := range earningsTokens {
		if strings.Contains(title, tok) {
			return IntentEarnings
		}
	}
	for _, tok := range macroTokens {
		if strings.Contains(title, tok) {
			return IntentMacroEvent
		}
	}
	return IntentGeneral
}
