package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nuvaru-go/internal/vectorstore"
	"nuvaru-go/pkg/database"
)

// HealthHandler 提供存活与就绪探针。
type HealthHandler struct {
	store vectorstore.Store
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(store vectorstore.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Health 存活探针，进程在即返回 ok。
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
}

// Ready 就绪探针，检查各依赖是否可用。
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := database.RDB.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	if count, err := h.store.Count(ctx); err != nil {
		checks["vector_store"] = err.Error()
		healthy = false
	} else {
		checks["vector_store"] = gin.H{"status": "ok", "entries": count}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"checks": checks, "timestamp": time.Now().UTC()})
}
