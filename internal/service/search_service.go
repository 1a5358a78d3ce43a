// Package service 提供了检索相关的业务逻辑。
package service

import (
	"context"
	"fmt"

	"nuvaru-go/internal/model"
	"nuvaru-go/internal/vectorstore"
	"nuvaru-go/pkg/apperr"
	"nuvaru-go/pkg/embedding"
	"nuvaru-go/pkg/log"
)

// SearchService 接口定义了相似度检索操作。
type SearchService interface {
	// Search 向量化查询并检索 topK 条最相似的分块。
	// 结果只来自该用户自己的文档；kbID 非空时进一步限定知识库。
	Search(ctx context.Context, userID uint, kbID, query string, topK int) ([]model.QueryResult, error)
}

type searchService struct {
	embeddingClient embedding.Client
	store           vectorstore.Store
	defaultTopK     int
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, store vectorstore.Store, defaultTopK int) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		store:           store,
		defaultTopK:     defaultTopK,
	}
}

// Search 执行相似度检索。
func (s *searchService) Search(ctx context.Context, userID uint, kbID, query string, topK int) ([]model.QueryResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: 查询内容为空", apperr.ErrValidation)
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}
	log.Infof("[SearchService] 开始检索, query: '%s', topK: %d, user: %d", query, topK, userID)

	// 1. 向量化查询
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	// 2. 过滤先于排名：只在该用户（及指定知识库）的分块内排序
	filter := map[string]string{
		"user_id": fmt.Sprintf("%d", userID),
	}
	if kbID != "" {
		filter["knowledge_base_id"] = kbID
	}

	results, err := s.store.Query(ctx, queryVector, topK, filter)
	if err != nil {
		log.Errorf("[SearchService] 向量检索失败: %v", err)
		return nil, fmt.Errorf("vector store query failed: %w", err)
	}

	log.Infof("[SearchService] 检索完毕, 返回 %d 条结果", len(results))
	return results, nil
}
