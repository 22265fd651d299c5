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

const glmAPIURL = "https://open.bigmodel.cn/api/paas/v4/chat/completions"

// GLMClient completes prompts through the Zhipu GLM chat API. The API
// is OpenAI-compatible so the wire shape mirrors OpenAIClient.
type GLMClient struct {
	apiKey string
	client *http.Client
}

// NewGLMClient creates a completion client for GLM
func NewGLMClient(apiKey string, timeout time.Duration) *GLMClient {
	return &GLMClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *GLMClient) Name() string {
	return "glm"
}

func (g *GLMClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	reqBody := map[string]interface{}{
		"model": req.Config.Model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.Prompt},
		},
		"temperature": req.Config.Temperature,
		"top_p":       req.Config.TopP,
		"max_tokens":  req.Config.MaxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", glmAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.apiKey))

	startTime := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrCompletionFailure, resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedCompletion, err)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrMalformedCompletion)
	}

	logger.Debug("GLM completion",
		zap.Duration("latency", time.Since(startTime)),
		zap.Int("prompt_tokens", result.Usage.PromptTokens),
		zap.Int("completion_tokens", result.Usage.CompletionTokens),
	)

	return &CompletionResult{
		Text:             result.Choices[0].Message.Content,
		Provider:         "glm",
		Model:            req.Config.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		CostUSD:          costOf(req.Config.Model, result.Usage.PromptTokens, result.Usage.CompletionTokens),
	}, nil
}
