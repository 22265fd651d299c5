package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
)

const (
	anthropicAPIURL  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// AnthropicClient completes prompts through the Anthropic messages API
type AnthropicClient struct {
	apiKey string
	client *http.Client
}

// NewAnthropicClient creates a completion client for Anthropic
func NewAnthropicClient(apiKey string, timeout time.Duration) *AnthropicClient {
	return &AnthropicClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *AnthropicClient) Name() string {
	return "anthropic"
}

func (a *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	reqBody := map[string]interface{}{
		"model":      req.Config.Model,
		"max_tokens": req.Config.MaxTokens,
		"system":     req.System,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"temperature": req.Config.Temperature,
		"top_p":       req.Config.TopP,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", anthropicAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	startTime := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrCompletionFailure, resp.StatusCode, string(body))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedCompletion, err)
	}

	if len(result.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content block", ErrMalformedCompletion)
	}

	logger.Debug("Anthropic completion",
		zap.Duration("latency", time.Since(startTime)),
		zap.Int("input_tokens", result.Usage.InputTokens),
		zap.Int("output_tokens", result.Usage.OutputTokens),
	)

	return &CompletionResult{
		Text:             result.Content[0].Text,
		Provider:         "anthropic",
		Model:            req.Config.Model,
		PromptTokens:     result.Usage.InputTokens,
		CompletionTokens: result.Usage.OutputTokens,
		CostUSD:          costOf(req.Config.Model, result.Usage.InputTokens, result.Usage.OutputTokens),
	}, nil
}
