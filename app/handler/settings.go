package handler

import (
	"net/http"

	"torrent-monitor/app/service"

	"github.com/gin-gonic/gin"
)

// SettingsHandler 执行日志保留设置
type SettingsHandler struct {
	ResponseHelper
	settings  *service.SettingsService
	retention *service.RetentionService
}

// NewSettingsHandler 创建设置处理器
func NewSettingsHandler(settings *service.SettingsService, retention *service.RetentionService) *SettingsHandler {
	return &SettingsHandler{settings: settings, retention: retention}
}

// RetentionRequest 保留天数请求
type RetentionRequest struct {
	Days int `json:"days" binding:"required,min=1"`
}

// GetRetention 返回执行日志保留天数
func (h *SettingsHandler) GetRetention(c *gin.Context) {
	days, err := h.settings.LogRetentionDays()
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}
	h.success(c, gin.H{"days": days}, "success")
}

// UpdateRetention 保存保留天数并立即清理一次
func (h *SettingsHandler) UpdateRetention(c *gin.Context) {
	var req RetentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	if err := h.settings.SetLogRetentionDays(req.Days); err != nil {
		h.error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}
	removed, err := h.retention.Cleanup()
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}
	h.success(c, gin.H{"days": req.Days, "removed": removed}, "保存成功")
}
