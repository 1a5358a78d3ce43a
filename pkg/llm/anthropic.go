package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"nuvaru-go/internal/config"
	"nuvaru-go/pkg/apperr"
)

// anthropicClient 调用 Anthropic Messages API。
type anthropicClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

func newAnthropicClient(cfg config.LLMConfig) Client {
	timeout := 30 * time.Second
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-haiku-20240307"
	}
	return &anthropicClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *anthropicClient) Provider() string { return "anthropic" }

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate 非流式生成回答。
func (c *anthropicClient) Generate(ctx context.Context, query, contextText, conversationContext string) (*GenerateResult, error) {
	maxTokens := c.cfg.Generation.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	reqBody := anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		Messages: []Message{
			{Role: "user", Content: buildPrompt(query, contextText, conversationContext)},
		},
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: 序列化请求失败: %v", apperr.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/messages", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: 创建请求失败: %v", apperr.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 调用 messages api 失败: %v", apperr.ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: messages api 返回非 200 状态: %s, body: %s", apperr.ErrGeneration, resp.Status, string(bodyBytes))
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: 解析响应失败: %v", apperr.ErrGeneration, err)
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("%w: 响应不包含任何内容块", apperr.ErrGeneration)
	}

	return &GenerateResult{
		Text:       result.Content[0].Text,
		Provider:   "anthropic",
		Model:      c.cfg.Model,
		TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
	}, nil
}

// StreamChatMessages 以非流式调用后整体写出。
// Messages API 的 SSE 事件格式与 openai 不兼容，流式支持后续单独接入。
func (c *anthropicClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	maxTokens := 500
	if gen != nil && gen.MaxTokens != nil {
		maxTokens = *gen.MaxTokens
	} else if c.cfg.Generation.MaxTokens > 0 {
		maxTokens = c.cfg.Generation.MaxTokens
	}
	reqBody := anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/messages", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(result.Content) == 0 {
		return nil
	}
	return writer.WriteMessage(websocket.TextMessage, []byte(result.Content[0].Text))
}
