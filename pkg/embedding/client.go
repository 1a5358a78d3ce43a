// Package embedding provides clients for mapping text to fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"

	"nuvaru-go/internal/config"
	"nuvaru-go/pkg/apperr"
)

// Client defines the interface for an embedding client.
// 两种实现：openai（语义模型）与 hash（确定性降级实现）。
// 同一索引生命周期内向量维度固定，由 Dimensions 返回。
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// NewClient 根据配置中的 provider 创建对应的 embedding 客户端。
// 构造失败是致命错误，应中止所属服务的启动，而不是在每次调用时重试。
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return newOpenAIClient(cfg)
	case "hash":
		return newHashClient(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: 未知的 embedding provider '%s'", apperr.ErrValidation, cfg.Provider)
	}
}
