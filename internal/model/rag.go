// Package model 定义了与数据库表对应的 Go 结构体以及 API 层的 DTO。
package model

import "time"

// QueryResult 是向量索引检索命中的单条结果。
// Similarity 为原始余弦相似度，取值范围 [-1, 1]，不做截断。
type QueryResult struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float64           `json:"similarity"`
}

// SourceRef 是回答中引用的来源描述。
type SourceRef struct {
	DocumentID     string            `json:"documentId"`
	Title          string            `json:"title"`
	RelevanceScore float64           `json:"relevanceScore"`
	Excerpt        string            `json:"excerpt"`
	Metadata       map[string]string `json:"metadata"`
}

// RagResponse 是一次问答请求的完整响应。
type RagResponse struct {
	Response  string            `json:"response"`
	Sources   []SourceRef       `json:"sources"`
	SessionID string            `json:"sessionId"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  RagResponseMeta   `json:"metadata"`
}

// RagResponseMeta 记录了响应的来源与规模信息。
// Provider 标记生成方："openai"/"anthropic" 为真实模型，
// "demo" 表示生成失败后的确定性降级回答。
type RagResponseMeta struct {
	UserID          uint   `json:"userId"`
	KnowledgeBaseID string `json:"knowledgeBaseId,omitempty"`
	SourcesCount    int    `json:"sourcesCount"`
	ContextLength   int    `json:"contextLength"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
}

// UploadResult 是文档上传接口的返回结构。
// Status 为 "processed" 或 "duplicate"；重复不是错误，属于正常上报的结果。
type UploadResult struct {
	DocID         string         `json:"docId,omitempty"`
	FileName      string         `json:"fileName"`
	ContentType   string         `json:"contentType"`
	Size          int64          `json:"size"`
	Status        string         `json:"status"`
	ChunksCount   int            `json:"chunksCount"`
	DuplicateInfo *DuplicateInfo `json:"duplicateInfo,omitempty"`
}

// DuplicateInfo 描述重复检测命中的细节。
// Kind 为 "exact"（同内容同文件名）或 "content"（同内容不同文件名）。
type DuplicateInfo struct {
	Kind             string `json:"kind"`
	Message          string `json:"message"`
	ExistingDocID    string `json:"existingDocId"`
	ExistingFileName string `json:"existingFileName"`
}
