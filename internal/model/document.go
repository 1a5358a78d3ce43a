// Package model 定义了与数据库表对应的 Go 结构体以及 API 层的 DTO。
package model

import "time"

// Document 对应于数据库中的 'documents' 表。
// 一条记录描述一份已入库的文档：原始字节存储在 MinIO，
// 切块后的文本与向量存储在向量索引中，两者共用 DocID。
type Document struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	DocID           string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"docId"`
	FileName        string    `gorm:"type:varchar(255);not null" json:"fileName"`
	ContentType     string    `gorm:"type:varchar(100);not null" json:"contentType"`
	ContentHash     string    `gorm:"type:varchar(64);not null;index:idx_user_hash,priority:2" json:"contentHash"`
	Size            int64     `gorm:"not null" json:"size"`
	UserID          uint      `gorm:"not null;index:idx_user_hash,priority:1" json:"userId"`
	KnowledgeBaseID string    `gorm:"type:varchar(64);index" json:"knowledgeBaseId"`
	ChunksCount     int       `gorm:"not null;default:0" json:"chunksCount"`
	ObjectKey       string    `gorm:"type:varchar(255)" json:"-"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
