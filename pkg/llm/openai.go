package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"nuvaru-go/internal/config"
	"nuvaru-go/pkg/apperr"
)

const defaultSystemPrompt = "You are a helpful AI assistant for the Nuvaru Domain-Centric Learning Platform. Provide accurate, helpful responses based on the provided context."

// openAIClient 调用 openai 兼容的 chat/completions 接口，
// DeepSeek、vLLM 等兼容后端都可以通过 base_url 接入。
type openAIClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

func newOpenAIClient(cfg config.LLMConfig) Client {
	timeout := 30 * time.Second
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *openAIClient) Provider() string { return "openai" }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// applyGeneration 从传参或配置注入生成参数（传参优先生效）。
func (c *openAIClient) applyGeneration(req *chatRequest, gen *GenerationParams) {
	if gen != nil {
		req.Temperature = gen.Temperature
		req.TopP = gen.TopP
		req.MaxTokens = gen.MaxTokens
		return
	}
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		req.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		req.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		req.MaxTokens = &m
	}
}

func (c *openAIClient) systemPrompt() string {
	if c.cfg.Prompt.SystemPrompt != "" {
		return c.cfg.Prompt.SystemPrompt
	}
	return defaultSystemPrompt
}

// Generate 非流式生成回答。
func (c *openAIClient) Generate(ctx context.Context, query, contextText, conversationContext string) (*GenerateResult, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: "system", Content: c.systemPrompt()},
			{Role: "user", Content: buildPrompt(query, contextText, conversationContext)},
		},
	}
	c.applyGeneration(&reqBody, nil)

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: 序列化请求失败: %v", apperr.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: 创建请求失败: %v", apperr.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 调用 chat api 失败: %v", apperr.ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: chat api 返回非 200 状态: %s, body: %s", apperr.ErrGeneration, resp.Status, string(bodyBytes))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("%w: 解析响应失败: %v", apperr.ErrGeneration, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: 响应不包含任何 choice", apperr.ErrGeneration)
	}

	return &GenerateResult{
		Text:       completion.Choices[0].Message.Content,
		Provider:   "openai",
		Model:      c.cfg.Model,
		TokensUsed: completion.Usage.TotalTokens,
	}, nil
}

// StreamChatMessages 调用流式接口并将分块逐条写入 writer。
func (c *openAIClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	c.applyGeneration(&reqBody, gen)

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				break
			}

			var chunk chatStreamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if len(chunk.Choices) > 0 {
				content := chunk.Choices[0].Delta.Content
				if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
					return fmt.Errorf("failed to write message to websocket: %w", err)
				}
			}
		}
	}
	return nil
}
