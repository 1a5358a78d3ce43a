package repository

import (
	"errors"

	"gorm.io/gorm"

	"nuvaru-go/internal/model"
)

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByDocID(docID string) (*model.Document, error)
	// FindByContentHash 查找同一用户下内容哈希相同的最早记录，
	// 未找到时返回 (nil, nil)。
	FindByContentHash(userID uint, contentHash string) (*model.Document, error)
	FindByUserID(userID uint) ([]model.Document, error)
	CountByUserID(userID uint) (int64, error)
	UpdateChunksCount(docID string, chunksCount int) error
	Delete(docID string) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条新的文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByDocID 根据文档 ID 查找一条文档记录。
func (r *documentRepository) FindByDocID(docID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("doc_id = ?", docID).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByContentHash 在同一用户范围内按内容哈希查找已有文档。
// 强制重传时同一哈希可能存在多条记录，取最早的一条作为重复判定依据。
func (r *documentRepository) FindByContentHash(userID uint, contentHash string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("user_id = ? AND content_hash = ?", userID, contentHash).
		Order("created_at ASC").
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByUserID 检索一个用户的全部文档记录，按创建时间倒序。
func (r *documentRepository) FindByUserID(userID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&docs).Error
	return docs, err
}

// CountByUserID 统计一个用户的文档总数。
func (r *documentRepository) CountByUserID(userID uint) (int64, error) {
	var total int64
	err := r.db.Model(&model.Document{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// UpdateChunksCount 更新文档的分块数（重建索引后分块数可能变化）。
func (r *documentRepository) UpdateChunksCount(docID string, chunksCount int) error {
	return r.db.Model(&model.Document{}).Where("doc_id = ?", docID).
		Update("chunks_count", chunksCount).Error
}

// Delete 根据文档 ID 删除一条文档记录。
func (r *documentRepository) Delete(docID string) error {
	return r.db.Where("doc_id = ?", docID).Delete(&model.Document{}).Error
}
