package vectorstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"nuvaru-go/internal/config"
	"nuvaru-go/internal/model"
	"nuvaru-go/pkg/apperr"
	"nuvaru-go/pkg/log"
)

// ESStore 将向量索引契约委托给 Elasticsearch 的 dense_vector + knn 检索。
//
// 两点与契约的偏差需要归一化处理：
//  1. ES 对 cosine 相似度返回 _score = (1 + cos) / 2，这里转换回原始余弦值；
//  2. 相同相似度条目的先后顺序由 ES 内部决定，无法保证与插入顺序一致。
type ESStore struct {
	client    *elasticsearch.Client
	indexName string
	dims      int
}

// NewESStore 初始化 ES 客户端并确保索引存在。
func NewESStore(cfg config.ElasticsearchConfig, dims int) (*ESStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: 创建 ES 客户端失败: %v", apperr.ErrStorage, err)
	}

	s := &ESStore{client: client, indexName: cfg.IndexName, dims: dims}
	if err := s.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则按固定映射创建。
func (s *ESStore) createIndexIfNotExists() error {
	res, err := s.client.Indices.Exists([]string{s.indexName})
	if err != nil {
		return fmt.Errorf("%w: 检查索引失败: %v", apperr.ErrStorage, err)
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("[ESStore] 索引 '%s' 已存在", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: 检查索引返回意外状态码 %d", apperr.ErrStorage, res.StatusCode)
	}

	// metadata 使用 flattened 类型，子字段直接支持 term 精确过滤
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"entry_id":     { "type": "keyword" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"metadata": { "type": "flattened" }
			}
		}
	}`, s.dims)

	createRes, err := s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("%w: 创建索引失败: %v", apperr.ErrStorage, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("%w: 创建索引时 ES 返回错误: %s", apperr.ErrStorage, createRes.String())
	}

	log.Infof("[ESStore] 索引 '%s' 创建成功, 维度: %d", s.indexName, s.dims)
	return nil
}

// esDocument 是写入 ES 的文档结构。
type esDocument struct {
	EntryID     string            `json:"entry_id"`
	TextContent string            `json:"text_content"`
	Vector      []float32         `json:"vector"`
	Metadata    map[string]string `json:"metadata"`
}

// Add 逐条索引条目；任何一条失败都删除本批已写入的条目后返回错误，
// 保证调用方观察不到半批状态。
func (s *ESStore) Add(ctx context.Context, entries []Entry) ([]string, error) {
	ids := make([]string, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		doc := esDocument{
			EntryID:     e.ID,
			TextContent: e.Text,
			Vector:      e.Vector,
			Metadata:    e.Metadata,
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			_ = s.Delete(ctx, ids)
			return nil, fmt.Errorf("%w: 序列化条目失败: %v", apperr.ErrStorage, err)
		}

		req := esapi.IndexRequest{
			Index:      s.indexName,
			DocumentID: e.ID,
			Body:       bytes.NewReader(docBytes),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			_ = s.Delete(ctx, ids)
			return nil, fmt.Errorf("%w: 索引条目 %d 失败: %v", apperr.ErrStorage, i, err)
		}
		res.Body.Close()
		if res.IsError() {
			_ = s.Delete(ctx, ids)
			return nil, fmt.Errorf("%w: 索引条目 %d 时 ES 返回错误: %s", apperr.ErrStorage, i, res.Status())
		}
		ids = append(ids, e.ID)
	}
	log.Infof("[ESStore] 已索引 %d 个条目到 '%s'", len(ids), s.indexName)
	return ids, nil
}

// Query 执行 knn 检索，filter 转换为 metadata 子字段的 term 合取。
func (s *ESStore) Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]model.QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}

	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": k * 10,
	}
	if len(filter) > 0 {
		must := make([]map[string]interface{}, 0, len(filter))
		for key, value := range filter {
			must = append(must, map[string]interface{}{
				"term": map[string]interface{}{"metadata." + key: value},
			})
		}
		knn["filter"] = map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		}
	}

	var buf bytes.Buffer
	esQuery := map[string]interface{}{"knn": knn, "size": k}
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("%w: 序列化查询失败: %v", apperr.ErrStorage, err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: ES 检索失败: %v", apperr.ErrStorage, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[ESStore] ES 检索返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil, fmt.Errorf("%w: ES 检索返回错误: %s", apperr.ErrStorage, res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esDocument `json:"_source"`
				Score  float64    `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("%w: 解析 ES 响应失败: %v", apperr.ErrStorage, err)
	}

	results := make([]model.QueryResult, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.QueryResult{
			ID:       hit.Source.EntryID,
			Text:     hit.Source.TextContent,
			Metadata: hit.Source.Metadata,
			// ES 对 cosine 的打分是 (1+cos)/2，转换回原始余弦值
			Similarity: 2*hit.Score - 1,
		})
	}
	return results, nil
}

// Get 按 ID 取回条目。
func (s *ESStore) Get(ctx context.Context, id string) (*Entry, error) {
	req := esapi.GetRequest{Index: s.indexName, DocumentID: id}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("%w: ES 读取失败: %v", apperr.ErrStorage, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: 条目 '%s' 不存在", apperr.ErrNotFound, id)
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: ES 读取返回错误: %s", apperr.ErrStorage, res.Status())
	}

	var getResponse struct {
		Source esDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&getResponse); err != nil {
		return nil, fmt.Errorf("%w: 解析 ES 响应失败: %v", apperr.ErrStorage, err)
	}
	return &Entry{
		ID:       getResponse.Source.EntryID,
		Vector:   getResponse.Source.Vector,
		Text:     getResponse.Source.TextContent,
		Metadata: getResponse.Source.Metadata,
	}, nil
}

// Delete 按 ID 删除条目；404 视为 no-op。
func (s *ESStore) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		req := esapi.DeleteRequest{Index: s.indexName, DocumentID: id, Refresh: "true"}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("%w: ES 删除失败: %v", apperr.ErrStorage, err)
		}
		res.Body.Close()
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			return fmt.Errorf("%w: ES 删除条目 '%s' 返回错误: %s", apperr.ErrStorage, id, res.Status())
		}
	}
	return nil
}

// Count 返回索引内条目总数。
func (s *ESStore) Count(ctx context.Context) (int, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.indexName),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: ES 计数失败: %v", apperr.ErrStorage, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("%w: ES 计数返回错误: %s", apperr.ErrStorage, res.Status())
	}

	var countResponse struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResponse); err != nil {
		return 0, fmt.Errorf("%w: 解析 ES 响应失败: %v", apperr.ErrStorage, err)
	}
	return countResponse.Count, nil
}
