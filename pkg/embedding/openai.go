package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nuvaru-go/internal/config"
	"nuvaru-go/pkg/apperr"
	"nuvaru-go/pkg/log"
)

// openAICompatibleClient 调用 OpenAI 兼容的 /embeddings 接口。
type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

func newOpenAIClient(cfg config.EmbeddingConfig) (*openAICompatibleClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: embedding base_url 未配置", apperr.ErrValidation)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding api_key 未配置", apperr.ErrValidation)
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Dimensions 返回配置的向量维度。
func (c *openAICompatibleClient) Dimensions() int {
	return c.cfg.Dimensions
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CreateEmbeddings 批量向量化。一次请求携带全部输入，顺序与输入一致。
func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: 输入文本列表为空", apperr.ErrEmbedding)
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("%w: 第 %d 条输入文本为空", apperr.ErrEmbedding, i)
		}
	}
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, inputs: %d", c.cfg.Model, len(texts))

	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: 序列化请求失败: %v", apperr.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: 创建请求失败: %v", apperr.ErrEmbedding, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding 请求超时", apperr.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("%w: api 返回状态 %s", apperr.ErrEmbedding, resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("%w: 解析响应失败: %v", apperr.ErrEmbedding, err)
	}

	if len(embeddingResp.Data) != len(texts) {
		log.Warnf("[EmbeddingClient] Embedding API 返回向量数 %d 与输入数 %d 不一致", len(embeddingResp.Data), len(texts))
		return nil, fmt.Errorf("%w: 返回向量数与输入数不一致", apperr.ErrEmbedding)
	}

	vectors := make([][]float32, 0, len(texts))
	for _, d := range embeddingResp.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: api 返回了空向量", apperr.ErrEmbedding)
		}
		vectors = append(vectors, d.Embedding)
	}

	log.Infof("[EmbeddingClient] 成功获取 %d 个向量, 维度: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}
