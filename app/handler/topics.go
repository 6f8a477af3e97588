package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"torrent-monitor/app/model"
	"torrent-monitor/app/plugin"
	"torrent-monitor/app/service"

	"github.com/gin-gonic/gin"
)

// TopicHandler 订阅管理
type TopicHandler struct {
	ResponseHelper
	topics *service.TopicService
}

// NewTopicHandler 创建订阅处理器
func NewTopicHandler(topics *service.TopicService) *TopicHandler {
	return &TopicHandler{topics: topics}
}

// AddTopicRequest 添加订阅请求
type AddTopicRequest struct {
	URL         string  `json:"url" binding:"required"`
	DisplayName string  `json:"display_name"`
	DownloadDir *string `json:"download_dir"`
}

// List 获取订阅列表
func (h *TopicHandler) List(c *gin.Context) {
	topics, err := h.topics.List()
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "获取订阅列表失败: "+err.Error())
		return
	}
	h.success(c, topics, "success")
}

// Parse 解析订阅地址
func (h *TopicHandler) Parse(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		h.error(c, http.StatusBadRequest, 400, "缺少参数 url")
		return
	}
	parsed, err := h.topics.ParseURL(url)
	if errors.Is(err, service.ErrUnsupportedURL) {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}
	if err != nil {
		h.error(c, http.StatusBadGateway, 502, err.Error())
		return
	}
	h.success(c, parsed, "success")
}

// Add 添加订阅
func (h *TopicHandler) Add(c *gin.Context) {
	var req AddTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	topic, err := h.topics.AddTopic(req.URL, plugin.TopicParams{
		DisplayName: req.DisplayName,
		DownloadDir: req.DownloadDir,
	})
	switch {
	case errors.Is(err, service.ErrUnsupportedURL):
		h.error(c, http.StatusBadRequest, 400, err.Error())
	case errors.Is(err, service.ErrTopicExists):
		h.error(c, http.StatusConflict, 409, err.Error())
	case err != nil:
		h.error(c, http.StatusInternalServerError, 500, "添加订阅失败: "+err.Error())
	default:
		h.success(c, topic, "添加成功")
	}
}

// Delete 删除订阅
func (h *TopicHandler) Delete(c *gin.Context) {
	id, ok := h.topicID(c)
	if !ok {
		return
	}
	h.reply(c, h.topics.Delete(id), "删除成功")
}

// Pause 暂停订阅
func (h *TopicHandler) Pause(c *gin.Context) {
	id, ok := h.topicID(c)
	if !ok {
		return
	}
	h.reply(c, h.topics.SetPaused(id, true), "已暂停")
}

// Unpause 恢复订阅
func (h *TopicHandler) Unpause(c *gin.Context) {
	id, ok := h.topicID(c)
	if !ok {
		return
	}
	h.reply(c, h.topics.SetPaused(id, false), "已恢复")
}

// ResetStatus 把订阅状态重置为 ok
func (h *TopicHandler) ResetStatus(c *gin.Context) {
	id, ok := h.topicID(c)
	if !ok {
		return
	}
	h.reply(c, h.topics.ResetStatus(id), "状态已重置为 "+string(model.TopicStatusOk))
}

func (h *TopicHandler) reply(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, service.ErrTopicNotFound):
		h.error(c, http.StatusNotFound, 404, err.Error())
	case err != nil:
		h.error(c, http.StatusInternalServerError, 500, err.Error())
	default:
		h.success(c, nil, message)
	}
}

func (h *TopicHandler) topicID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.error(c, http.StatusBadRequest, 400, "无效的订阅 id")
		return 0, false
	}
	return uint(id), true
}
