package plugin

import (
	"fmt"
	"time"

	"torrent-monitor/app/model"
	"torrent-monitor/app/utils/torrentfile"
)

// HashTopic 通过 info-hash 判断是否更新的订阅
type HashTopic interface {
	Topic
	GetHash() string
}

// Download 一次种子下载的结果
// Status 为空表示 ok；非 ok 时 Content 被忽略
type Download struct {
	Content  []byte
	Filename string
	Status   model.TopicStatus
}

// TopicUpdate 执行后需要持久化的订阅变化，nil 字段保持不变
type TopicUpdate struct {
	Hash       *string
	LastUpdate *time.Time
	Status     model.TopicStatus
}

// HashChangeTracker 按 info-hash 检测更新的 tracker
type HashChangeTracker interface {
	DownloadTorrent(topic HashTopic) (*Download, error)
	SaveTopic(topic HashTopic, update TopicUpdate) error
}

// ExecuteWithHashChange 逐个下载订阅的种子，info-hash 变化时交给下载客户端
// 单个订阅失败只记录日志，不影响其他订阅
func ExecuteWithHashChange(tracker HashChangeTracker, topics []Topic, engine ExecuteEngine) {
	for index, t := range topics {
		topic, ok := t.(HashTopic)
		if !ok {
			engine.Failed(fmt.Sprintf("订阅 <b>%s</b> 不支持按 hash 检测", t.Base().DisplayName), nil)
			continue
		}
		if err := executeHashTopic(tracker, index, topic, engine); err != nil {
			engine.Failed(fmt.Sprintf("更新 <b>%s</b> 失败", topic.Base().DisplayName), err)
		}
	}
}

func executeHashTopic(tracker HashChangeTracker, index int, topic HashTopic, engine ExecuteEngine) error {
	base := topic.Base()
	name := base.DisplayName
	engine.Info(fmt.Sprintf("检查 <b>%s</b> 是否有更新", name))

	download, err := tracker.DownloadTorrent(topic)
	if err != nil {
		return err
	}

	status := download.Status
	if status == "" {
		status = model.TopicStatusOk
	}
	if base.Status != status {
		oldStatus := base.Status
		if err := tracker.SaveTopic(topic, TopicUpdate{Status: status}); err != nil {
			return err
		}
		base.Status = status
		engine.StatusChanged(base, oldStatus, status)
	}
	if status != model.TopicStatusOk {
		return nil
	}

	torrent, err := torrentfile.Parse(download.Content)
	if err != nil {
		return err
	}

	filename := download.Filename
	if filename == "" {
		filename = name
	}

	oldHash := topic.GetHash()
	if torrent.InfoHash == oldHash {
		engine.Info(fmt.Sprintf("<b>%s</b> 没有变化", name))
		return nil
	}

	engine.Downloaded(fmt.Sprintf("<b>%s</b> 的种子已更新", name), download.Content)
	lastUpdate, err := engine.AddTorrent(index, filename, torrent, oldHash, SettingsFromTopic(base))
	if err != nil {
		return err
	}

	return tracker.SaveTopic(topic, TopicUpdate{
		Hash:       &torrent.InfoHash,
		LastUpdate: &lastUpdate,
		Status:     model.TopicStatusOk,
	})
}
