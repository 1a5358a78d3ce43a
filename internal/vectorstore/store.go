// Package vectorstore 定义了向量索引的统一契约及其两种实现：
// 文件持久化的线性扫描存储（memory）与 Elasticsearch 委托实现（es）。
// 上层的正确性只依赖本契约，不依赖具体实现。
package vectorstore

import (
	"context"
	"math"

	"nuvaru-go/internal/model"
)

// Entry 是向量索引持有的原子单元。
// ID 在一个集合内全局唯一，约定为 "{docID}_chunk_{i}"。
// Metadata 是查询按用户/知识库过滤的唯一手段，至少携带
// user_id、doc_id、chunk_index、content_type。
type Entry struct {
	ID       string            `json:"id"`
	Vector   []float32         `json:"vector"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Store 是向量索引的统一契约。
//
// Query 返回按余弦相似度降序的至多 k 条结果，相同相似度按插入顺序
// 稳定排序；filter 是对 metadata 的精确匹配合取，过滤发生在排名之前。
// 写操作（Add/Delete）相互串行，读操作可并发；与写并发的读允许观察到
// 写前或写后的状态，但绝不允许观察到半写入的条目。
type Store interface {
	// Add 追加条目并持久化。条目缺少 ID 时自动生成 UUID，返回全部 ID。
	Add(ctx context.Context, entries []Entry) ([]string, error)
	// Query 检索与 vector 最相似的至多 k 条结果。
	Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]model.QueryResult, error)
	// Get 按 ID 取回条目，不存在时返回 apperr.ErrNotFound。
	Get(ctx context.Context, id string) (*Entry, error)
	// Delete 按 ID 删除条目，删除不存在的 ID 是 no-op 而非错误。
	Delete(ctx context.Context, ids []string) error
	// Count 返回集合内条目总数。
	Count(ctx context.Context) (int, error)
}

// CosineSimilarity 计算两个向量的余弦相似度 dot(a,b)/(|a|*|b|)。
// 任一向量模长为零时定义为 0.0，不是错误也不是 NaN。
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	for i := n; i < len(a); i++ {
		magA += float64(a[i]) * float64(a[i])
	}
	for i := n; i < len(b); i++ {
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
