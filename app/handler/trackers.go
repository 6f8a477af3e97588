package handler

import (
	"errors"
	"net/http"

	"torrent-monitor/app/plugin"
	"torrent-monitor/app/service"

	"github.com/gin-gonic/gin"
)

// TrackerHandler tracker 凭据与登录检查
type TrackerHandler struct {
	ResponseHelper
	trackers *service.TrackerService
}

// NewTrackerHandler 创建 tracker 处理器
func NewTrackerHandler(trackers *service.TrackerService) *TrackerHandler {
	return &TrackerHandler{trackers: trackers}
}

// CredentialsRequest 凭据请求
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CheckResponse 检查结果
type CheckResponse struct {
	Status bool   `json:"status"`
	Result string `json:"result"`
}

// List 列出已注册的 tracker
func (h *TrackerHandler) List(c *gin.Context) {
	h.success(c, h.trackers.List(), "success")
}

// Get 返回 tracker 凭据，不包含密码
func (h *TrackerHandler) Get(c *gin.Context) {
	creds, err := h.trackers.Credentials(c.Param("tracker"))
	if h.trackerError(c, err) {
		return
	}
	if creds == nil {
		h.success(c, nil, "未设置凭据")
		return
	}
	h.success(c, creds, "success")
}

// Update 保存 tracker 凭据
func (h *TrackerHandler) Update(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	err := h.trackers.UpdateCredentials(c.Param("tracker"), req.Username, req.Password)
	if h.trackerError(c, err) {
		return
	}
	h.success(c, nil, "保存成功")
}

// Check 检查登录状态
func (h *TrackerHandler) Check(c *gin.Context) {
	result, err := h.trackers.Check(c.Param("tracker"))
	if h.trackerError(c, err) {
		return
	}
	h.success(c, CheckResponse{Status: result == plugin.LoginOk, Result: result.String()}, "success")
}

func (h *TrackerHandler) trackerError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, service.ErrTrackerNotFound):
		h.error(c, http.StatusNotFound, 404, err.Error())
	case errors.Is(err, service.ErrCredentialsUnsupported):
		h.error(c, http.StatusBadRequest, 400, err.Error())
	default:
		h.error(c, http.StatusInternalServerError, 500, err.Error())
	}
	return true
}
