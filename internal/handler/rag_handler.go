package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nuvaru-go/internal/service"
	"nuvaru-go/pkg/log"
)

// RagHandler 负责处理检索增强问答相关的 API 请求。
type RagHandler struct {
	ragService          service.RagService
	conversationService service.ConversationService
}

// NewRagHandler 创建一个新的 RagHandler 实例。
func NewRagHandler(ragService service.RagService, conversationService service.ConversationService) *RagHandler {
	return &RagHandler{
		ragService:          ragService,
		conversationService: conversationService,
	}
}

// ChatRequest 定义了问答 API 的请求体结构。
type ChatRequest struct {
	Message         string `json:"message" binding:"required"`
	SessionID       string `json:"sessionId"`
	KnowledgeBaseID string `json:"knowledgeBaseId"`
}

// Chat 处理一次完整的问答请求。
func (h *RagHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[RagHandler] 无效的请求负载: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：message 不能为空"})
		return
	}

	user := currentUser(c)
	if user == nil {
		return
	}

	response, err := h.ragService.Chat(c.Request.Context(), service.ChatRequest{
		UserID:          user.ID,
		KnowledgeBaseID: req.KnowledgeBaseID,
		Message:         req.Message,
		SessionID:       req.SessionID,
	})
	if err != nil {
		log.Errorf("[RagHandler] 问答失败, user: %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}

	respondOK(c, response)
}

// GetHistory 返回当前用户会话的消息历史。
func (h *RagHandler) GetHistory(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	history, err := h.conversationService.GetHistory(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("[RagHandler] 获取会话历史失败: %v", err)
		respondError(c, err)
		return
	}
	respondOK(c, history)
}

// ClearHistory 清空当前用户会话的消息历史。
func (h *RagHandler) ClearHistory(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	if err := h.conversationService.ClearHistory(c.Request.Context(), user.ID); err != nil {
		log.Errorf("[RagHandler] 清空会话历史失败: %v", err)
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"status": "cleared"})
}
