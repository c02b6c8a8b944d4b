// Package http 分发服务的 HTTP 接口层
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/coursenotify/internal/dispatch/application"
	"github.com/wyfcoding/pkg/logging"
)

// DispatchHandler 负责处理与通知分发相关的 HTTP 请求
type DispatchHandler struct {
	app *application.DispatchService
}

// NewDispatchHandler 创建 HTTP 处理器实例
func NewDispatchHandler(app *application.DispatchService) *DispatchHandler {
	return &DispatchHandler{app: app}
}

// RegisterRoutes 将处理器方法绑定到 Gin 路由引擎
func (h *DispatchHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/notifications")
	{
		api.POST("/dispatch", h.Dispatch)
		api.GET("/messages", h.ListMessages)
	}
}

// AssetRequest 事件主体描述
type AssetRequest struct {
	Key           string `json:"key" binding:"required"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	ContextID     uint64 `json:"context_id"`
	ContextType   string `json:"context_type"`
	ContextLocale string `json:"context_locale"`
	RootAccountID uint64 `json:"root_account_id"`
}

// DispatchRequest 分发请求
type DispatchRequest struct {
	Notification string         `json:"notification" binding:"required"`
	Asset        AssetRequest   `json:"asset" binding:"required"`
	RecipientIDs []uint64       `json:"recipient_ids" binding:"required"`
	Data         map[string]any `json:"data"`
}

// Dispatch 执行一次通知分发
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd := application.DispatchCommand{
		NotificationName: req.Notification,
		Asset: application.AssetPayload{
			Key:           req.Asset.Key,
			Title:         req.Asset.Title,
			URL:           req.Asset.URL,
			ContextID:     req.Asset.ContextID,
			ContextType:   req.Asset.ContextType,
			ContextLocale: req.Asset.ContextLocale,
			RootAccountID: req.Asset.RootAccountID,
		},
		RecipientIDs: req.RecipientIDs,
		Data:         req.Data,
	}

	msgs, err := h.app.Dispatch(c.Request.Context(), cmd)
	if err != nil {
		if errors.Is(err, application.ErrUnknownNotification) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logging.Error(c.Request.Context(), "Failed to dispatch notification",
			"notification", req.Notification, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

// ListMessages 按用户查询消息历史
func (h *DispatchHandler) ListMessages(c *gin.Context) {
	userIDStr := c.Query("user_id")
	if userIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	userID, err := strconv.ParseUint(userIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	msgs, total, err := h.app.ListMessages(c.Request.Context(), userID, limit, offset)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to list messages", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "total": total})
}
