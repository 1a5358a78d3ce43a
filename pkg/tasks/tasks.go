// Package tasks 定义了通过 Kafka 传递的事件结构。
package tasks

import "time"

// 文档索引事件类型。
const (
	EventDocumentIndexed = "document.indexed"
	EventDocumentDeleted = "document.deleted"
	EventDocumentReindex = "document.reindex"
)

// DocumentIndexEvent 描述一次文档索引生命周期变更。
// 入库与删除时发布（尽力而为，不阻塞主流程）；
// reindex 事件由消费者接收并触发重建。
type DocumentIndexEvent struct {
	Type            string    `json:"type"`
	DocID           string    `json:"doc_id"`
	UserID          uint      `json:"user_id"`
	FileName        string    `json:"file_name"`
	KnowledgeBaseID string    `json:"knowledge_base_id,omitempty"`
	ChunksCount     int       `json:"chunks_count"`
	Timestamp       time.Time `json:"timestamp"`
}
