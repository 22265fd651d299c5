package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
)

// Completion error kinds. Callers decide whether to retry, fall back to
// the keyword parser, or drop the article.
var (
	// ErrCompletionFailure covers transport errors, timeouts and non-200s
	ErrCompletionFailure = errors.New("completion request failed")
	// ErrMalformedCompletion means the model answered but not with the
	// JSON shape we asked for
	ErrMalformedCompletion = errors.New("malformed completion payload")
)

// CompletionConfig selects the provider, model and sampling parameters
type CompletionConfig struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// CompletionRequest is one prompt sent to a provider
type CompletionRequest struct {
	System string
	Prompt string
	Config CompletionConfig
}

// CompletionResult is the raw model answer plus usage accounting
type CompletionResult struct {
	Text             string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// TotalTokens returns prompt plus completion token usage
func (r *CompletionResult) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Completer is a single-shot LLM completion interface
type Completer interface {
	// Complete sends one prompt and returns the raw answer
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	// Name returns provider name for logging
	Name() string
}

// modelPricing holds USD cost per one million tokens
type modelPricing struct {
	input  float64
	output float64
}

var pricingTable = map[string]modelPricing{
	"gpt-4o":             {2.50, 10.00},
	"gpt-4o-mini":        {0.15, 0.60},
	"claude-3-5-sonnet":  {3.00, 15.00},
	"claude-3-5-haiku":   {0.80, 4.00},
	"gemini-1.5-pro":     {1.25, 5.00},
	"gemini-1.5-flash":   {0.075, 0.30},
	"glm-4-air":          {0.10, 0.10},
	"glm-4-plus":         {0.70, 0.70},
}

var defaultPricing = modelPricing{0.50, 1.50}

// costOf converts token usage into USD for a known model
func costOf(model string, promptTokens, completionTokens int) float64 {
	p, ok := pricingTable[model]
	if !ok {
		p = defaultPricing
	}
	return p.input*float64(promptTokens)/1e6 + p.output*float64(completionTokens)/1e6
}

// NewCompleter builds the configured provider client
func NewCompleter(cfg *config.AIConfig) (Completer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.OpenAIKey, cfg.Timeout), nil
	case "anthropic":
		return NewAnthropicClient(cfg.AnthropicKey, cfg.Timeout), nil
	case "gemini":
		return NewGeminiClient(cfg.GeminiKey, cfg.Timeout), nil
	case "glm":
		return NewGLMClient(cfg.GLMKey, cfg.Timeout), nil
	case "local":
		return NewLocalClient(cfg.LocalEndpoint, cfg.Timeout), nil
	case "mock":
		return NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("unknown completion provider: %s", cfg.Provider)
	}
}
