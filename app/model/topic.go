package model

import (
	"fmt"
	"strings"
	"time"
)

// TopicStatus 订阅状态
type TopicStatus string

const (
	TopicStatusOk       TopicStatus = "ok"
	TopicStatusError    TopicStatus = "error"
	TopicStatusNotFound TopicStatus = "not_found"
	TopicStatusUnknown  TopicStatus = "unknown"
)

// ParseTopicStatus 解析状态字符串，大小写不敏感
func ParseTopicStatus(s string) (TopicStatus, error) {
	switch TopicStatus(strings.ToLower(strings.TrimSpace(s))) {
	case TopicStatusOk:
		return TopicStatusOk, nil
	case TopicStatusError:
		return TopicStatusError, nil
	case TopicStatusNotFound, "notfound":
		return TopicStatusNotFound, nil
	case TopicStatusUnknown:
		return TopicStatusUnknown, nil
	}
	return "", fmt.Errorf("未知的订阅状态: %s", s)
}

// ExecutableStatuses 自动执行时会被检查的状态
var ExecutableStatuses = []TopicStatus{TopicStatusOk, TopicStatusError}

// Topic 订阅基础表，所有 tracker 子类型共享 id、名称、地址与状态
// Type 为判别字段，决定用哪个 tracker 的扩展表来补充字段
type Topic struct {
	ID          uint        `gorm:"primarykey" json:"id"`
	DisplayName string      `gorm:"uniqueIndex;not null;comment:显示名称" json:"display_name"`
	URL         string      `gorm:"column:url;uniqueIndex;not null;comment:订阅地址" json:"url"`
	LastUpdate  *time.Time  `gorm:"comment:最后更新时间" json:"last_update"`
	Type        string      `gorm:"size:64;index;not null;comment:tracker类型" json:"tracker"`
	Status      TopicStatus `gorm:"size:20;default:ok;index;comment:状态" json:"status"`
	Paused      bool        `gorm:"default:false;comment:是否暂停" json:"paused"`
	DownloadDir *string     `gorm:"comment:下载目录" json:"download_dir"`
}

// TableName 指定表名
func (Topic) TableName() string {
	return "topics"
}

// IsExecutable 判断自动执行时是否需要检查该订阅
func (t *Topic) IsExecutable() bool {
	if t.Paused {
		return false
	}
	return t.Status == TopicStatusOk || t.Status == TopicStatusError
}
