// Package pipeline 定义了文档重建索引的处理流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/minio/minio-go/v7"

	"nuvaru-go/internal/chunker"
	"nuvaru-go/internal/config"
	"nuvaru-go/internal/repository"
	"nuvaru-go/internal/vectorstore"
	"nuvaru-go/pkg/embedding"
	"nuvaru-go/pkg/log"
	"nuvaru-go/pkg/storage"
	"nuvaru-go/pkg/tasks"
	"nuvaru-go/pkg/tika"
)

// Processor 消费 document.reindex 事件，从对象存储取回原始文件，
// 重新提取、切块、向量化并替换向量索引中的既有分块。
// 向量模型升级或索引迁移后用它批量重建。
type Processor struct {
	tikaClient      *tika.Client
	embeddingClient embedding.Client
	store           vectorstore.Store
	docRepo         repository.DocumentRepository
	splitter        *chunker.Chunker
	minioCfg        config.MinIOConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	tikaClient *tika.Client,
	embeddingClient embedding.Client,
	store vectorstore.Store,
	docRepo repository.DocumentRepository,
	minioCfg config.MinIOConfig,
	ragCfg config.RAGConfig,
) *Processor {
	return &Processor{
		tikaClient:      tikaClient,
		embeddingClient: embeddingClient,
		store:           store,
		docRepo:         docRepo,
		splitter:        chunker.New(ragCfg.ChunkSize, ragCfg.ChunkOverlap),
		minioCfg:        minioCfg,
	}
}

// Process 是重建索引的主函数。
func (p *Processor) Process(ctx context.Context, event tasks.DocumentIndexEvent) error {
	log.Infof("[Processor] 开始重建索引, doc_id: %s, file: %s", event.DocID, event.FileName)

	doc, err := p.docRepo.FindByDocID(event.DocID)
	if err != nil {
		return fmt.Errorf("查询文档记录失败: %w", err)
	}

	// 1. 从 MinIO 下载原始文件
	log.Infof("[Processor] 步骤1: 从MinIO下载文件, Bucket: %s, Object: %s", p.minioCfg.BucketName, doc.ObjectKey)
	object, err := storage.MinioClient.GetObject(ctx, p.minioCfg.BucketName, doc.ObjectKey, minio.GetObjectOptions{})
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", doc.ObjectKey, err)
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		log.Errorf("[Processor] 从MinIO对象流中读取内容失败, Error: %v", err)
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)
	if size == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", doc.FileName)
		return errors.New("文件内容为空")
	}

	// 2. 提取文本
	log.Info("[Processor] 步骤2: 提取文本内容")
	textContent, err := p.extractText(buf.Bytes(), doc.FileName, doc.ContentType)
	if err != nil {
		log.Errorf("[Processor] 提取文本失败, FileName: %s, Error: %v", doc.FileName, err)
		return fmt.Errorf("提取文本失败: %w", err)
	}
	if textContent == "" {
		log.Warnf("[Processor] 提取的文本内容为空, 处理中止, FileName: %s", doc.FileName)
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 文本切块
	chunks := p.splitter.Split(textContent)
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		return errors.New("未生成任何文本分块")
	}

	// 4. 向量化
	vectors, err := p.embeddingClient.CreateEmbeddings(ctx, chunks)
	if err != nil {
		log.Errorf("[Processor] 向量化失败, Error: %v", err)
		return fmt.Errorf("向量化失败: %w", err)
	}

	// 5. 删除既有分块后重建（幂等：重复消费同一事件结果一致）
	oldIDs := make([]string, 0, doc.ChunksCount)
	for i := 0; i < doc.ChunksCount; i++ {
		oldIDs = append(oldIDs, fmt.Sprintf("%s_chunk_%d", doc.DocID, i))
	}
	if err := p.store.Delete(ctx, oldIDs); err != nil {
		return fmt.Errorf("清理既有分块失败: %w", err)
	}

	entries := make([]vectorstore.Entry, 0, len(chunks))
	for i, chunk := range chunks {
		metadata := map[string]string{
			"user_id":      fmt.Sprintf("%d", doc.UserID),
			"doc_id":       doc.DocID,
			"chunk_index":  fmt.Sprintf("%d", i),
			"content_type": doc.ContentType,
			"file_name":    doc.FileName,
		}
		if doc.KnowledgeBaseID != "" {
			metadata["knowledge_base_id"] = doc.KnowledgeBaseID
		}
		entries = append(entries, vectorstore.Entry{
			ID:       fmt.Sprintf("%s_chunk_%d", doc.DocID, i),
			Vector:   vectors[i],
			Text:     chunk,
			Metadata: metadata,
		})
	}
	if _, err := p.store.Add(ctx, entries); err != nil {
		return fmt.Errorf("写入向量索引失败: %w", err)
	}

	if len(chunks) != doc.ChunksCount {
		if err := p.docRepo.UpdateChunksCount(doc.DocID, len(chunks)); err != nil {
			log.Errorf("[Processor] 更新分块数失败, doc_id: %s, error: %v", doc.DocID, err)
		}
	}

	log.Infof("[Processor] 重建索引完成, doc_id: %s, chunks: %d", doc.DocID, len(chunks))
	return nil
}

// extractText 文本类型直接读取，其余类型交给 Tika。
func (p *Processor) extractText(data []byte, fileName, contentType string) (string, error) {
	switch contentType {
	case "text/plain", "text/markdown", "application/json":
		return string(data), nil
	}
	return p.tikaClient.ExtractText(bytes.NewReader(data), fileName)
}
