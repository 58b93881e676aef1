package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Pinger はデータベース接続の確認に使うインターフェースです。*sql.DB が満たします。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェック用のハンドラーです。
type HealthHandler struct {
	db     Pinger
	logger *log.Logger
}

// NewHealthHandler は新しいHealthHandlerを作成します。
func NewHealthHandler(db Pinger, logger *log.Logger) *HealthHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &HealthHandler{db: db, logger: logger}
}

// LivenessHandler はプロセスが動いていることを返します。
func (h *HealthHandler) LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Todo API is running"})
}

// ReadinessHandler はデータベースに接続できるか確認します。
func (h *HealthHandler) ReadinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Error("database ping failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "Database connection failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Database connection is healthy"})
}
