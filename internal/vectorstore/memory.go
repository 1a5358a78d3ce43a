package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"nuvaru-go/internal/model"
	"nuvaru-go/pkg/apperr"
	"nuvaru-go/pkg/log"
)

// MemoryStore 是文件持久化的线性扫描向量索引。
// 全量加载到内存，每次变更整体重写集合文件；查询为 O(n*D) 的线性扫描。
// 对目标规模（单集合万级条目）足够，规模上来之后应切换到 ES 实现。
//
// 并发模型：RWMutex 串行化写操作，查询之间互不阻塞。
type MemoryStore struct {
	mu             sync.RWMutex
	entries        []Entry
	collectionFile string
	collectionName string
}

// collectionData 是集合文件的持久化结构，四个平行数组按下标对应。
type collectionData struct {
	Documents  []string            `json:"documents"`
	Embeddings [][]float32         `json:"embeddings"`
	Metadatas  []map[string]string `json:"metadatas"`
	IDs        []string            `json:"ids"`
}

// NewMemoryStore 创建（或从磁盘恢复）一个集合。
func NewMemoryStore(dataDir, collectionName string) (*MemoryStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: 创建数据目录失败: %v", apperr.ErrStorage, err)
	}
	s := &MemoryStore{
		collectionFile: filepath.Join(dataDir, collectionName+".json"),
		collectionName: collectionName,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	log.Infof("[VectorStore] 集合 '%s' 已加载, 条目数: %d", collectionName, len(s.entries))
	return s, nil
}

// load 从集合文件恢复全部条目；文件不存在视为空集合。
func (s *MemoryStore) load() error {
	raw, err := os.ReadFile(s.collectionFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: 读取集合文件失败: %v", apperr.ErrStorage, err)
	}

	var data collectionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("%w: 解析集合文件失败: %v", apperr.ErrStorage, err)
	}
	if len(data.IDs) != len(data.Documents) || len(data.IDs) != len(data.Embeddings) || len(data.IDs) != len(data.Metadatas) {
		return fmt.Errorf("%w: 集合文件数组长度不一致", apperr.ErrStorage)
	}

	s.entries = make([]Entry, 0, len(data.IDs))
	for i := range data.IDs {
		s.entries = append(s.entries, Entry{
			ID:       data.IDs[i],
			Vector:   data.Embeddings[i],
			Text:     data.Documents[i],
			Metadata: data.Metadatas[i],
		})
	}
	return nil
}

// persist 将当前全部条目重写到集合文件。
// 先写临时文件再原子替换，崩溃时磁盘上要么是旧集合要么是新集合。
func (s *MemoryStore) persist() error {
	data := collectionData{
		Documents:  make([]string, 0, len(s.entries)),
		Embeddings: make([][]float32, 0, len(s.entries)),
		Metadatas:  make([]map[string]string, 0, len(s.entries)),
		IDs:        make([]string, 0, len(s.entries)),
	}
	for _, e := range s.entries {
		data.Documents = append(data.Documents, e.Text)
		data.Embeddings = append(data.Embeddings, e.Vector)
		data.Metadatas = append(data.Metadatas, e.Metadata)
		data.IDs = append(data.IDs, e.ID)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: 序列化集合失败: %v", apperr.ErrStorage, err)
	}

	tmp := s.collectionFile + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("%w: 写入集合文件失败: %v", apperr.ErrStorage, err)
	}
	if err := os.Rename(tmp, s.collectionFile); err != nil {
		return fmt.Errorf("%w: 替换集合文件失败: %v", apperr.ErrStorage, err)
	}
	return nil
}

// Add 追加条目并持久化。持久化失败时回滚内存状态，调用方不会看到半成品。
func (s *MemoryStore) Add(_ context.Context, entries []Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(entries))
	prev := len(s.entries)
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		ids = append(ids, e.ID)
		s.entries = append(s.entries, e)
	}

	if err := s.persist(); err != nil {
		s.entries = s.entries[:prev]
		return nil, err
	}

	log.Infof("[VectorStore] 已添加 %d 个条目到集合 '%s', 总数: %d", len(entries), s.collectionName, len(s.entries))
	return ids, nil
}

// Query 线性扫描全部条目：先按 metadata 精确匹配过滤，再按余弦相似度
// 降序稳定排序（相同相似度保持插入顺序），最后截断到 k 条。
func (s *MemoryStore) Query(_ context.Context, vector []float32, k int, filter map[string]string) ([]model.QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]model.QueryResult, 0, len(s.entries))
	for _, e := range s.entries {
		if !matchesFilter(e.Metadata, filter) {
			continue
		}
		results = append(results, model.QueryResult{
			ID:         e.ID,
			Text:       e.Text,
			Metadata:   e.Metadata,
			Similarity: CosineSimilarity(vector, e.Vector),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Get 按 ID 取回条目。
func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID == id {
			found := e
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: 条目 '%s' 不存在", apperr.ErrNotFound, id)
}

// Delete 删除给定 ID 的条目并持久化；不存在的 ID 被静默跳过。
func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(s.entries) {
		return nil
	}

	prev := s.entries
	s.entries = kept
	if err := s.persist(); err != nil {
		s.entries = prev
		return err
	}

	log.Infof("[VectorStore] 已从集合 '%s' 删除 %d 个条目, 剩余: %d", s.collectionName, len(prev)-len(kept), len(kept))
	return nil
}

// Count 返回集合内条目总数。
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// matchesFilter 判断 metadata 是否满足 filter 的全部键值（精确匹配合取）。
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
