// Package service 包含了应用的业务逻辑层。
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"nuvaru-go/internal/chunker"
	"nuvaru-go/internal/config"
	"nuvaru-go/internal/model"
	"nuvaru-go/internal/repository"
	"nuvaru-go/internal/vectorstore"
	"nuvaru-go/pkg/apperr"
	"nuvaru-go/pkg/embedding"
	"nuvaru-go/pkg/kafka"
	"nuvaru-go/pkg/log"
	"nuvaru-go/pkg/storage"
	"nuvaru-go/pkg/tasks"
	"nuvaru-go/pkg/tika"
)

// KnowledgeBaseStats 汇总一个用户知识库的规模信息。
type KnowledgeBaseStats struct {
	DocumentsCount int64  `json:"documentsCount"`
	ChunksCount    int    `json:"chunksCount"`
	CollectionName string `json:"collectionName"`
}

// UploadRequest 封装一次上传请求的全部输入。
// Force 为 true 时跳过重复检测，强制重新入库。
type UploadRequest struct {
	UserID          uint
	FileName        string
	ContentType     string
	Data            []byte
	KnowledgeBaseID string
	Force           bool
}

// DocumentService 接口定义了文档入库与管理相关的业务操作。
type DocumentService interface {
	// Upload 执行完整的入库管道：校验、查重、提取、切块、向量化、索引。
	// 重复命中不是错误，通过 UploadResult.Status == "duplicate" 上报。
	// 任一阶段失败时不留下任何部分状态。
	Upload(ctx context.Context, req UploadRequest) (*model.UploadResult, error)
	Delete(ctx context.Context, userID uint, docID string) error
	List(userID uint) ([]model.Document, error)
	Get(userID uint, docID string) (*model.Document, error)
	// DownloadURL 为原始文件签发限时下载链接。
	DownloadURL(userID uint, docID string) (string, error)
	Stats(ctx context.Context, userID uint) (*KnowledgeBaseStats, error)
}

// objectStorage 抽象原始文件字节的写入与删除。
type objectStorage interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Remove(ctx context.Context, bucket, key string) error
}

// minioObjectStorage 把对象操作委托给全局 MinIO 客户端。
type minioObjectStorage struct{}

func (minioObjectStorage) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := storage.MinioClient.PutObject(ctx, bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (minioObjectStorage) Remove(ctx context.Context, bucket, key string) error {
	return storage.MinioClient.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

type documentService struct {
	docRepo         repository.DocumentRepository
	store           vectorstore.Store
	embeddingClient embedding.Client
	splitter        *chunker.Chunker
	tikaClient      *tika.Client
	objects         objectStorage
	minioCfg        config.MinIOConfig
	ragCfg          config.RAGConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	docRepo repository.DocumentRepository,
	store vectorstore.Store,
	embeddingClient embedding.Client,
	tikaClient *tika.Client,
	minioCfg config.MinIOConfig,
	ragCfg config.RAGConfig,
) DocumentService {
	return &documentService{
		docRepo:         docRepo,
		store:           store,
		embeddingClient: embeddingClient,
		splitter:        chunker.New(ragCfg.ChunkSize, ragCfg.ChunkOverlap),
		tikaClient:      tikaClient,
		objects:         minioObjectStorage{},
		minioCfg:        minioCfg,
		ragCfg:          ragCfg,
	}
}

// 行内提取的文本类型；其余类型走 Tika。
var inlineTextTypes = map[string]bool{
	"text/plain":       true,
	"text/markdown":    true,
	"application/json": true,
}

// 允许入库的文件类型。
var supportedTypes = map[string]bool{
	"text/plain":         true,
	"text/markdown":      true,
	"application/json":   true,
	"application/pdf":    true,
	"text/csv":           true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// Upload 执行完整的文档入库管道。
func (s *documentService) Upload(ctx context.Context, req UploadRequest) (*model.UploadResult, error) {
	log.Infof("[DocumentService] 开始上传, file: '%s', size: %d, user: %d, force: %v",
		req.FileName, len(req.Data), req.UserID, req.Force)

	// 1. 校验
	if err := s.validate(req); err != nil {
		return nil, err
	}

	// 2. 内容哈希与查重
	hashBytes := sha256.Sum256(req.Data)
	contentHash := hex.EncodeToString(hashBytes[:])

	if !req.Force {
		existing, err := s.docRepo.FindByContentHash(req.UserID, contentHash)
		if err != nil {
			return nil, fmt.Errorf("%w: 查重失败: %v", apperr.ErrStorage, err)
		}
		if existing != nil {
			kind := "content"
			message := fmt.Sprintf("文件内容与已有文档 '%s' 相同", existing.FileName)
			if existing.FileName == req.FileName {
				kind = "exact"
				message = fmt.Sprintf("文件 '%s' 已存在", req.FileName)
			}
			log.Infof("[DocumentService] 命中重复文档, kind: %s, existing: %s", kind, existing.DocID)
			return &model.UploadResult{
				FileName:    req.FileName,
				ContentType: req.ContentType,
				Size:        int64(len(req.Data)),
				Status:      "duplicate",
				DuplicateInfo: &model.DuplicateInfo{
					Kind:             kind,
					Message:          message,
					ExistingDocID:    existing.DocID,
					ExistingFileName: existing.FileName,
				},
			}, nil
		}
	}

	// 3. 文本提取
	text, err := s.extractText(req)
	if err != nil {
		return nil, err
	}

	// 4. 切块
	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: 文档不包含可提取的文本", apperr.ErrValidation)
	}
	log.Infof("[DocumentService] 切块完成, chunks: %d", len(chunks))

	// 5. 向量化（整批一次，失败时无任何落盘状态）
	vectors, err := s.embeddingClient.CreateEmbeddings(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("向量化文档失败: %w", err)
	}

	// 6. 写入向量索引
	docID := uuid.NewString()
	entries := make([]vectorstore.Entry, 0, len(chunks))
	for i, chunk := range chunks {
		metadata := map[string]string{
			"user_id":      fmt.Sprintf("%d", req.UserID),
			"doc_id":       docID,
			"chunk_index":  fmt.Sprintf("%d", i),
			"content_type": req.ContentType,
			"file_name":    req.FileName,
		}
		if req.KnowledgeBaseID != "" {
			metadata["knowledge_base_id"] = req.KnowledgeBaseID
		}
		entries = append(entries, vectorstore.Entry{
			ID:       fmt.Sprintf("%s_chunk_%d", docID, i),
			Vector:   vectors[i],
			Text:     chunk,
			Metadata: metadata,
		})
	}
	chunkIDs, err := s.store.Add(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("写入向量索引失败: %w", err)
	}

	// 7. 原始字节存入 MinIO；失败时回滚已索引的分块
	objectKey := fmt.Sprintf("documents/%d/%s/%s", req.UserID, docID, req.FileName)
	if err := s.objects.Put(ctx, s.minioCfg.BucketName, objectKey, req.Data, req.ContentType); err != nil {
		_ = s.store.Delete(ctx, chunkIDs)
		return nil, fmt.Errorf("%w: 存储原始文件失败: %v", apperr.ErrStorage, err)
	}

	// 8. 写入文档记录；失败时回滚索引与对象
	doc := &model.Document{
		DocID:           docID,
		FileName:        req.FileName,
		ContentType:     req.ContentType,
		ContentHash:     contentHash,
		Size:            int64(len(req.Data)),
		UserID:          req.UserID,
		KnowledgeBaseID: req.KnowledgeBaseID,
		ChunksCount:     len(chunks),
		ObjectKey:       objectKey,
	}
	if err := s.docRepo.Create(doc); err != nil {
		_ = s.store.Delete(ctx, chunkIDs)
		_ = s.objects.Remove(ctx, s.minioCfg.BucketName, objectKey)
		return nil, fmt.Errorf("%w: 写入文档记录失败: %v", apperr.ErrStorage, err)
	}

	// 9. 发布索引事件（尽力而为，失败只记录）
	if err := kafka.ProduceDocumentEvent(tasks.DocumentIndexEvent{
		Type:            tasks.EventDocumentIndexed,
		DocID:           docID,
		UserID:          req.UserID,
		FileName:        req.FileName,
		KnowledgeBaseID: req.KnowledgeBaseID,
		ChunksCount:     len(chunks),
		Timestamp:       time.Now(),
	}); err != nil {
		log.Errorf("[DocumentService] 发布索引事件失败: %v", err)
	}

	log.Infof("[DocumentService] 上传完成, doc_id: %s, chunks: %d", docID, len(chunks))
	return &model.UploadResult{
		DocID:       docID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        int64(len(req.Data)),
		Status:      "processed",
		ChunksCount: len(chunks),
	}, nil
}

// validate 检查文件大小与类型。
func (s *documentService) validate(req UploadRequest) error {
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: 文件为空", apperr.ErrValidation)
	}
	if int64(len(req.Data)) > s.ragCfg.MaxFileSize {
		return fmt.Errorf("%w: 文件大小 %d 超出上限 %d", apperr.ErrValidation, len(req.Data), s.ragCfg.MaxFileSize)
	}
	if req.FileName == "" {
		return fmt.Errorf("%w: 文件名为空", apperr.ErrValidation)
	}
	if !supportedTypes[req.ContentType] {
		return fmt.Errorf("%w: 不支持的文件类型 '%s'", apperr.ErrValidation, req.ContentType)
	}
	return nil
}

// extractText 提取文档纯文本：文本类型直接读取，其余类型交给 Tika。
func (s *documentService) extractText(req UploadRequest) (string, error) {
	if inlineTextTypes[req.ContentType] {
		return string(req.Data), nil
	}
	text, err := s.tikaClient.ExtractText(bytes.NewReader(req.Data), req.FileName)
	if err != nil {
		return "", fmt.Errorf("%w: 提取文本失败: %v", apperr.ErrValidation, err)
	}
	return text, nil
}

// Delete 删除文档：向量分块、数据库记录与原始对象一并清理。
func (s *documentService) Delete(ctx context.Context, userID uint, docID string) error {
	doc, err := s.docRepo.FindByDocID(docID)
	if err != nil {
		return fmt.Errorf("%w: 文档 '%s' 不存在", apperr.ErrNotFound, docID)
	}
	if doc.UserID != userID {
		return fmt.Errorf("%w: 文档 '%s' 不属于该用户", apperr.ErrNotFound, docID)
	}

	chunkIDs := make([]string, 0, doc.ChunksCount)
	for i := 0; i < doc.ChunksCount; i++ {
		chunkIDs = append(chunkIDs, fmt.Sprintf("%s_chunk_%d", docID, i))
	}
	if err := s.store.Delete(ctx, chunkIDs); err != nil {
		return fmt.Errorf("删除向量分块失败: %w", err)
	}

	if err := s.docRepo.Delete(docID); err != nil {
		return fmt.Errorf("%w: 删除文档记录失败: %v", apperr.ErrStorage, err)
	}

	if doc.ObjectKey != "" {
		if err := s.objects.Remove(ctx, s.minioCfg.BucketName, doc.ObjectKey); err != nil {
			// 对象清理失败不阻塞删除，记录后人工处理
			log.Errorf("[DocumentService] 删除对象失败, key: %s, error: %v", doc.ObjectKey, err)
		}
	}

	if err := kafka.ProduceDocumentEvent(tasks.DocumentIndexEvent{
		Type:        tasks.EventDocumentDeleted,
		DocID:       docID,
		UserID:      userID,
		FileName:    doc.FileName,
		ChunksCount: doc.ChunksCount,
		Timestamp:   time.Now(),
	}); err != nil {
		log.Errorf("[DocumentService] 发布删除事件失败: %v", err)
	}

	log.Infof("[DocumentService] 文档已删除, doc_id: %s, chunks: %d", docID, doc.ChunksCount)
	return nil
}

// List 返回用户的全部文档。
func (s *documentService) List(userID uint) ([]model.Document, error) {
	return s.docRepo.FindByUserID(userID)
}

// Get 返回用户的单个文档。
func (s *documentService) Get(userID uint, docID string) (*model.Document, error) {
	doc, err := s.docRepo.FindByDocID(docID)
	if err != nil {
		return nil, fmt.Errorf("%w: 文档 '%s' 不存在", apperr.ErrNotFound, docID)
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("%w: 文档 '%s' 不属于该用户", apperr.ErrNotFound, docID)
	}
	return doc, nil
}

// DownloadURL 签发原始文件的限时下载链接。
func (s *documentService) DownloadURL(userID uint, docID string) (string, error) {
	doc, err := s.Get(userID, docID)
	if err != nil {
		return "", err
	}
	if doc.ObjectKey == "" {
		return "", fmt.Errorf("%w: 文档 '%s' 没有原始文件", apperr.ErrNotFound, docID)
	}
	url, err := storage.GetPresignedURL(s.minioCfg.BucketName, doc.ObjectKey, 15*time.Minute)
	if err != nil {
		return "", fmt.Errorf("%w: 签发下载链接失败: %v", apperr.ErrStorage, err)
	}
	return url, nil
}

// Stats 汇总用户知识库的规模信息。
func (s *documentService) Stats(_ context.Context, userID uint) (*KnowledgeBaseStats, error) {
	total, err := s.docRepo.CountByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: 统计文档数失败: %v", apperr.ErrStorage, err)
	}
	docs, err := s.docRepo.FindByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: 查询文档列表失败: %v", apperr.ErrStorage, err)
	}
	chunks := 0
	for _, d := range docs {
		chunks += d.ChunksCount
	}
	return &KnowledgeBaseStats{
		DocumentsCount: total,
		ChunksCount:    chunks,
		CollectionName: s.ragCfg.CollectionName,
	}, nil
}
