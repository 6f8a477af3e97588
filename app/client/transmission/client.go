// Package transmission Transmission 下载客户端
package transmission

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"
	"torrent-monitor/app/plugin"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Name 客户端名称
const Name = "transmission"

// ErrNotConfigured 还没有保存连接设置
var ErrNotConfigured = errors.New("transmission 未配置")

// SettingsPayload 更新设置的请求体，密码为空时保留原密码
type SettingsPayload struct {
	Host     string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Path     string `json:"path" validate:"omitempty,startswith=/"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Client 实现 plugin.Client
type Client struct {
	db       *gorm.DB
	logger   *logger.Logger
	timeout  time.Duration
	validate *validator.Validate

	mu  sync.Mutex
	rpc *rpcClient
}

// New 创建客户端，连接参数每次从数据库读取
func New(db *gorm.DB, log *logger.Logger, timeout time.Duration) *Client {
	return &Client{
		db:       db,
		logger:   log.Named(Name),
		timeout:  timeout,
		validate: validator.New(),
	}
}

func (c *Client) Name() string {
	return Name
}

func (c *Client) credentials() (*model.TransmissionCredentials, error) {
	var creds model.TransmissionCredentials
	err := c.db.First(&creds).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

// connection 返回当前设置对应的 RPC 连接，设置变化后重建
func (c *Client) connection() (*rpcClient, error) {
	creds, err := c.credentials()
	if err != nil {
		return nil, err
	}
	url := rpcURL(creds)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil && c.rpc.url == url && c.rpc.username == creds.Username && c.rpc.password == creds.Password {
		return c.rpc, nil
	}
	if c.rpc != nil {
		_ = c.rpc.close()
	}
	c.rpc = newRPCClient(url, creds.Username, creds.Password, c.timeout)
	return c.rpc, nil
}

func rpcURL(creds *model.TransmissionCredentials) string {
	host := creds.Host
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	port := creds.Port
	if port == 0 {
		port = 9091
	}
	path := creds.Path
	if path == "" {
		path = "/transmission/rpc"
	}
	return fmt.Sprintf("%s:%d%s", strings.TrimRight(host, "/"), port, path)
}

// Check 能否连接到 Transmission
func (c *Client) Check() bool {
	rpc, err := c.connection()
	if err != nil {
		return false
	}
	if _, err := call[map[string]any](rpc, "session-get", nil); err != nil {
		c.logger.Warnf("连接 Transmission 失败: %v", err)
		return false
	}
	return true
}

// FindTorrent 按 info-hash 查找，找不到返回 nil, nil
func (c *Client) FindTorrent(hash string) (*plugin.TorrentInfo, error) {
	rpc, err := c.connection()
	if err != nil {
		return nil, err
	}
	result, err := call[torrentGetResult](rpc, "torrent-get", map[string]any{
		"fields": []string{"hashString", "name", "addedDate"},
		"ids":    []string{strings.ToLower(hash)},
	})
	if err != nil {
		return nil, err
	}
	for _, t := range result.Torrents {
		if strings.EqualFold(t.HashString, hash) {
			return &plugin.TorrentInfo{
				Name:      t.Name,
				Hash:      strings.ToLower(t.HashString),
				DateAdded: time.Unix(t.AddedDate, 0).UTC(),
			}, nil
		}
	}
	return nil, nil
}

// AddTorrent 提交种子内容，重复的种子也算成功
func (c *Client) AddTorrent(content []byte, settings plugin.TopicSettings) (bool, error) {
	rpc, err := c.connection()
	if err != nil {
		return false, err
	}
	args := map[string]any{
		"metainfo": base64.StdEncoding.EncodeToString(content),
	}
	if settings.DownloadDir != nil && *settings.DownloadDir != "" {
		args["download-dir"] = *settings.DownloadDir
	}
	result, err := call[torrentAddResult](rpc, "torrent-add", args)
	if err != nil {
		return false, err
	}
	return result.Added != nil || result.Duplicate != nil, nil
}

// RemoveTorrent 删除种子，保留已下载的数据
func (c *Client) RemoveTorrent(hash string) (bool, error) {
	rpc, err := c.connection()
	if err != nil {
		return false, err
	}
	if _, err := call[map[string]any](rpc, "torrent-remove", map[string]any{
		"ids":               []string{strings.ToLower(hash)},
		"delete-local-data": false,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// Settings 返回不含密码的设置，未配置时返回 nil
func (c *Client) Settings() (any, error) {
	creds, err := c.credentials()
	if errors.Is(err, ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// UpdateSettings 保存连接设置
func (c *Client) UpdateSettings(raw []byte) error {
	var payload SettingsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", plugin.ErrInvalidSettings, err)
	}
	if err := c.validate.Struct(&payload); err != nil {
		return fmt.Errorf("%w: %v", plugin.ErrInvalidSettings, err)
	}

	creds, err := c.credentials()
	if errors.Is(err, ErrNotConfigured) {
		creds = &model.TransmissionCredentials{}
	} else if err != nil {
		return err
	}

	creds.Host = payload.Host
	creds.Port = payload.Port
	if creds.Port == 0 {
		creds.Port = 9091
	}
	creds.Path = payload.Path
	if creds.Path == "" {
		creds.Path = "/transmission/rpc"
	}
	creds.Username = payload.Username
	if payload.Password != "" || payload.Username == "" {
		creds.Password = payload.Password
	}
	return c.db.Save(creds).Error
}

// Close 关闭连接
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc == nil {
		return nil
	}
	err := c.rpc.close()
	c.rpc = nil
	return err
}
