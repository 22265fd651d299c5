package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
)

// LocalClient completes prompts through a self-hosted OpenAI-compatible
// endpoint such as Ollama or vLLM. No auth, zero cost accounting.
type LocalClient struct {
	endpoint string
	client   *http.Client
}

// NewLocalClient creates a completion client for a local model server
func NewLocalClient(endpoint string, timeout time.Duration) *LocalClient {
	return &LocalClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (l *LocalClient) Name() string {
	return "local"
}

func (l *LocalClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	reqBody := map[string]interface{}{
		"model": req.Config.Model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.Prompt},
		},
		"temperature": req.Config.Temperature,
		"max_tokens":  req.Config.MaxTokens,
		"stream":      false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := l.endpoint + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := l.client.Do(httpReq)
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

	logger.Debug("local completion",
		zap.Duration("latency", time.Since(startTime)),
		zap.String("endpoint", l.endpoint),
	)

	return &CompletionResult{
		Text:             result.Choices[0].Message.Content,
		Provider:         "local",
		Model:            req.Config.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		CostUSD:          0,
	}, nil
}
