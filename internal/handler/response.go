// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nuvaru-go/pkg/apperr"
)

// respondError 按错误类别映射 HTTP 状态码并返回统一的错误结构。
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrEmbedding), errors.Is(err, apperr.ErrGeneration):
		status = http.StatusBadGateway
	case errors.Is(err, apperr.ErrStorage):
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error()})
}

// respondOK 返回统一的成功结构。
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": data, "message": "success"})
}
