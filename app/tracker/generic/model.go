package generic

import (
	"torrent-monitor/app/model"
)

// Topic generic tracker 的订阅扩展表，与 topics 共享主键
type Topic struct {
	TopicID    uint        `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Topic      model.Topic `gorm:"foreignKey:TopicID;constraint:OnDelete:CASCADE" json:"topic"`
	TorrentURL string      `gorm:"comment:种子下载地址" json:"torrent_url"`
	Hash       string      `gorm:"size:40;comment:info-hash" json:"hash"`
}

// TableName 指定表名
func (Topic) TableName() string {
	return "generic_topics"
}

func (t *Topic) Base() *model.Topic {
	return &t.Topic
}

func (t *Topic) GetHash() string {
	return t.Hash
}

// legacyTable 版本 0 的独立表: id, name, url, hash, last_update
const legacyTable = "generic_torrents"
