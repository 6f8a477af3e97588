package handler

import (
	"errors"
	"net/http"

	"torrent-monitor/app/plugin"

	"github.com/gin-gonic/gin"
)

// ClientHandler 下载客户端设置
type ClientHandler struct {
	ResponseHelper
	registry *plugin.Registry
	clients  *plugin.ClientsManager
}

// NewClientHandler 创建下载客户端处理器
func NewClientHandler(registry *plugin.Registry, clients *plugin.ClientsManager) *ClientHandler {
	return &ClientHandler{registry: registry, clients: clients}
}

// DefaultClientRequest 默认客户端请求
type DefaultClientRequest struct {
	Client string `json:"client" binding:"required"`
}

// ClientInfo 客户端列表项
type ClientInfo struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// List 列出下载客户端
func (h *ClientHandler) List(c *gin.Context) {
	var defaultName string
	if client, err := h.clients.Default(); err == nil {
		defaultName = client.Name()
	}
	clients := h.registry.Clients()
	out := make([]ClientInfo, 0, len(clients))
	for _, client := range clients {
		out = append(out, ClientInfo{Name: client.Name(), Default: client.Name() == defaultName})
	}
	h.success(c, out, "success")
}

// Get 返回客户端设置
func (h *ClientHandler) Get(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}
	settings, err := client.Settings()
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "读取客户端设置失败: "+err.Error())
		return
	}
	h.success(c, settings, "success")
}

// Update 保存客户端设置，请求体由客户端自行解析
func (h *ClientHandler) Update(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "读取请求失败: "+err.Error())
		return
	}
	err = client.UpdateSettings(raw)
	if errors.Is(err, plugin.ErrInvalidSettings) {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "保存客户端设置失败: "+err.Error())
		return
	}
	h.success(c, nil, "保存成功")
}

// Check 检查客户端连接
func (h *ClientHandler) Check(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}
	h.success(c, gin.H{"status": client.Check()}, "success")
}

// GetDefault 返回默认客户端
func (h *ClientHandler) GetDefault(c *gin.Context) {
	client, err := h.clients.Default()
	if err != nil {
		h.error(c, http.StatusNotFound, 404, err.Error())
		return
	}
	h.success(c, gin.H{"client": client.Name()}, "success")
}

// SetDefault 设置默认客户端
func (h *ClientHandler) SetDefault(c *gin.Context) {
	var req DefaultClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	if _, ok := h.registry.Client(req.Client); !ok {
		h.error(c, http.StatusNotFound, 404, "下载客户端不存在: "+req.Client)
		return
	}
	if err := h.clients.SetDefault(req.Client); err != nil {
		h.error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}
	h.success(c, gin.H{"client": req.Client}, "保存成功")
}

func (h *ClientHandler) client(c *gin.Context) (plugin.Client, bool) {
	name := c.Param("client")
	client, ok := h.registry.Client(name)
	if !ok {
		h.error(c, http.StatusNotFound, 404, "下载客户端不存在: "+name)
		return nil, false
	}
	return client, true
}
