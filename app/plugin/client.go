package plugin

import (
	"errors"
	"fmt"
	"time"

	"torrent-monitor/app/model"
)

// ErrInvalidSettings UpdateSettings 收到的设置格式错误或未通过校验
var ErrInvalidSettings = errors.New("客户端设置无效")

// TopicSettings 传给下载客户端的订阅级设置
type TopicSettings struct {
	DownloadDir *string
}

// SettingsFromTopic 从订阅中提取客户端设置
func SettingsFromTopic(topic *model.Topic) TopicSettings {
	return TopicSettings{DownloadDir: topic.DownloadDir}
}

// TorrentInfo 下载客户端中的种子
type TorrentInfo struct {
	Name      string    `json:"name"`
	Hash      string    `json:"hash"`
	DateAdded time.Time `json:"date_added"`
}

// Client 下载客户端能力
type Client interface {
	Name() string
	Check() bool
	FindTorrent(hash string) (*TorrentInfo, error)
	AddTorrent(content []byte, settings TopicSettings) (bool, error)
	RemoveTorrent(hash string) (bool, error)
	// Settings 返回可以公开给前端的设置
	Settings() (any, error)
	UpdateSettings(raw []byte) error
}

// DefaultClientStore 保存默认客户端名称
type DefaultClientStore interface {
	DefaultClient() (string, error)
	SetDefaultClient(name string) error
}

// ClientsManager 把种子操作转发到默认客户端
type ClientsManager struct {
	registry *Registry
	store    DefaultClientStore
}

// NewClientsManager 创建客户端管理器
func NewClientsManager(registry *Registry, store DefaultClientStore) *ClientsManager {
	return &ClientsManager{registry: registry, store: store}
}

// Default 返回当前默认客户端；未设置时使用第一个注册的客户端
func (m *ClientsManager) Default() (Client, error) {
	name, err := m.store.DefaultClient()
	if err != nil {
		return nil, err
	}
	if name != "" {
		if client, ok := m.registry.Client(name); ok {
			return client, nil
		}
	}
	clients := m.registry.Clients()
	if len(clients) == 0 {
		return nil, fmt.Errorf("没有可用的下载客户端")
	}
	return clients[0], nil
}

// SetDefault 设置默认客户端
func (m *ClientsManager) SetDefault(name string) error {
	if _, ok := m.registry.Client(name); !ok {
		return fmt.Errorf("未知的下载客户端: %s", name)
	}
	return m.store.SetDefaultClient(name)
}

func (m *ClientsManager) FindTorrent(hash string) (*TorrentInfo, error) {
	client, err := m.Default()
	if err != nil {
		return nil, err
	}
	return client.FindTorrent(hash)
}

func (m *ClientsManager) AddTorrent(content []byte, settings TopicSettings) (bool, error) {
	client, err := m.Default()
	if err != nil {
		return false, err
	}
	return client.AddTorrent(content, settings)
}

func (m *ClientsManager) RemoveTorrent(hash string) (bool, error) {
	client, err := m.Default()
	if err != nil {
		return false, err
	}
	return client.RemoveTorrent(hash)
}
