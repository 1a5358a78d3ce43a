package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"nuvaru-go/internal/model"
	"nuvaru-go/internal/service"
	"nuvaru-go/pkg/log"
)

// DocumentHandler 负责处理文档上传与管理相关的 API 请求。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 处理文档上传请求（multipart 表单）。
// force=true 时跳过重复检测强制入库。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warnf("[DocumentHandler] 上传请求缺少文件: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "请求必须包含 file 字段"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无法读取上传文件"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取文件内容失败"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if override := c.PostForm("contentType"); override != "" {
		contentType = override
	}

	user := currentUser(c)
	if user == nil {
		return
	}

	result, err := h.documentService.Upload(c.Request.Context(), service.UploadRequest{
		UserID:          user.ID,
		FileName:        fileHeader.Filename,
		ContentType:     contentType,
		Data:            data,
		KnowledgeBaseID: c.PostForm("knowledgeBaseId"),
		Force:           c.Query("force") == "true" || c.PostForm("force") == "true",
	})
	if err != nil {
		log.Errorf("[DocumentHandler] 上传失败, file: '%s', error: %v", fileHeader.Filename, err)
		respondError(c, err)
		return
	}

	respondOK(c, result)
}

// List 返回当前用户的全部文档。
func (h *DocumentHandler) List(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	docs, err := h.documentService.List(user.ID)
	if err != nil {
		log.Errorf("[DocumentHandler] 查询文档列表失败: %v", err)
		respondError(c, err)
		return
	}
	respondOK(c, docs)
}

// Get 返回单个文档的详情。
func (h *DocumentHandler) Get(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	doc, err := h.documentService.Get(user.ID, c.Param("docId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, doc)
}

// Download 返回原始文件的限时下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	url, err := h.documentService.DownloadURL(user.ID, c.Param("docId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"url": url})
}

// Delete 删除一个文档及其全部向量分块。
func (h *DocumentHandler) Delete(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	docID := c.Param("docId")
	if err := h.documentService.Delete(c.Request.Context(), user.ID, docID); err != nil {
		log.Errorf("[DocumentHandler] 删除文档失败, doc_id: %s, error: %v", docID, err)
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"docId": docID, "status": "deleted"})
}

// Stats 返回当前用户知识库的统计信息。
func (h *DocumentHandler) Stats(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	stats, err := h.documentService.Stats(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stats)
}

// currentUser 从上下文中取出 AuthMiddleware 注入的用户，取不到时直接响应错误。
func currentUser(c *gin.Context) *model.User {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return nil
	}
	user, ok := userValue.(*model.User)
	if !ok || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "用户数据类型错误"})
		return nil
	}
	return user
}
