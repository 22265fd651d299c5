package ai

import (
	"context"
	"sync"
)

// defaultMockAnalysis is a conservative non-actionable payload so a
// misconfigured mock never produces trades.
const defaultMockAnalysis = `{
  "sentiment": "NEUTRAL",
  "sentiment_score": 0.0,
  "confidence": 0.5,
  "impact": 0.2,
  "urgency": "LOW",
  "risk_level": "MEDIUM",
  "trading_actionable": false,
  "related_tickers": [],
  "summary": "mock analysis"
}`

// MockCompleter returns scripted completions for tests and dry runs
type MockCompleter struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	lastReq   CompletionRequest
}

// NewMockCompleter creates a mock returning the given responses in
// order, repeating the final one. With no arguments it returns a
// neutral analysis payload.
func NewMockCompleter(responses ...string) *MockCompleter {
	if len(responses) == 0 {
		responses = []string{defaultMockAnalysis}
	}
	return &MockCompleter{responses: responses}
}

// WithError makes every completion fail with err
func (m *MockCompleter) WithError(err error) *MockCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockCompleter) Name() string {
	return "mock"
}

func (m *MockCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastReq = req
	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	text := m.responses[idx]

	return &CompletionResult{
		Text:             text,
		Provider:         "mock",
		Model:            req.Config.Model,
		PromptTokens:     len(req.System+req.Prompt) / 4,
		CompletionTokens: len(text) / 4,
		CostUSD:          0,
	}, nil
}

// Calls returns how many completions were requested
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request seen by the mock
func (m *MockCompleter) LastRequest() CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}
