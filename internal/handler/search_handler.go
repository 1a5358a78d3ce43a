package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nuvaru-go/internal/service"
	"nuvaru-go/pkg/log"
)

// SearchHandler 结构体定义了检索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search 是处理相似度检索请求的 Gin 处理函数。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	log.Infof("[SearchHandler] 收到检索请求, query: %s", query)

	if query == "" {
		log.Warnf("[SearchHandler] 检索请求失败: query 参数为空")
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的查询参数"})
		return
	}
	topKStr := c.DefaultQuery("topK", "0")
	topK, err := strconv.Atoi(topKStr)
	if err != nil || topK < 0 {
		topK = 0
	}

	user := currentUser(c)
	if user == nil {
		return
	}

	results, err := h.searchService.Search(c.Request.Context(), user.ID, c.Query("knowledgeBaseId"), query, topK)
	if err != nil {
		log.Errorf("[SearchHandler] 检索服务返回错误, error: %v", err)
		respondError(c, err)
		return
	}

	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	respondOK(c, results)
}
