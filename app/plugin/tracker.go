// Package plugin 定义 tracker 插件与下载客户端的能力接口，以及进程内的插件注册表
package plugin

import (
	"time"

	"torrent-monitor/app/model"
	"torrent-monitor/app/utils/torrentfile"

	"gorm.io/gorm"
)

// Topic 插件返回的订阅，Base 指向共享基础表中的记录
type Topic interface {
	Base() *model.Topic
}

// ParsedURL 解析订阅地址得到的元数据
type ParsedURL struct {
	Tracker string            `json:"tracker"`
	URL     string            `json:"url"`
	Title   string            `json:"original_name"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// TopicParams 添加订阅时用户提供的参数
type TopicParams struct {
	DisplayName string  `json:"display_name"`
	DownloadDir *string `json:"download_dir"`
}

// TrackerSettings 引擎在每次执行前交给插件的共享设置
type TrackerSettings struct {
	RequestsTimeout time.Duration
}

// ExecuteEngine 引擎交给插件的受限能力
type ExecuteEngine interface {
	Info(message string)
	Failed(message string, err error)
	Downloaded(message string, torrent []byte)
	StatusChanged(topic *model.Topic, oldStatus, newStatus model.TopicStatus)
	AddTorrent(index int, filename string, torrent *torrentfile.File, oldHash string, settings TopicSettings) (time.Time, error)
}

// Tracker 每个站点一个实现
type Tracker interface {
	Name() string
	CanParseURL(url string) bool
	// ParseURL 无法识别时返回 nil, nil
	ParseURL(url string) (*ParsedURL, error)
	AddTopic(url string, params TopicParams) (*model.Topic, error)
	// GetTopics ids 为空时返回全部可执行（ok/error 且未暂停）的订阅
	GetTopics(ids []uint) ([]Topic, error)
	Execute(topics []Topic, engine ExecuteEngine) error
}

// WithCredentials 需要登录的 tracker
type WithCredentials interface {
	Login() LoginResult
	Verify() bool
	GetCredentials() (*model.TrackerCredentials, error)
	UpdateCredentials(username, password string) error
}

// Configurable 需要接收共享设置的 tracker
type Configurable interface {
	Init(settings TrackerSettings)
}

// Upgradable 拥有自己数据表的 tracker
type Upgradable interface {
	// Version 当前代码期望的表结构版本
	Version() int
	// Models 最新版本的表模型，全新安装时直接建表
	Models() []any
	// Upgrade 从 from 版本升级到 Version()，在事务中执行
	Upgrade(tx *gorm.DB, from int) error
}
