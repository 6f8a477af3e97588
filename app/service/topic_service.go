package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"
	"torrent-monitor/app/plugin"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

const parseCacheExpiration = 10 * time.Minute

var (
	ErrUnsupportedURL = errors.New("没有插件能解析该地址")
	ErrTopicNotFound  = errors.New("订阅不存在")
	ErrTopicExists    = errors.New("订阅已存在")
)

// TopicView 订阅列表项，Known 为 false 表示所属插件已不存在
type TopicView struct {
	model.Topic
	Known bool `json:"known"`
}

// TopicService 订阅的通用操作，只读写基础表；插件相关的操作交给所属 tracker
type TopicService struct {
	db       *gorm.DB
	registry *plugin.Registry
	cache    *cache.Cache
	logger   *logger.Logger
}

// NewTopicService 创建订阅服务
func NewTopicService(db *gorm.DB, registry *plugin.Registry, log *logger.Logger) *TopicService {
	return &TopicService{
		db:       db,
		registry: registry,
		cache:    cache.New(parseCacheExpiration, 2*parseCacheExpiration),
		logger:   log.Named("topics"),
	}
}

// ParseURL 解析结果缓存 10 分钟
func (s *TopicService) ParseURL(url string) (*plugin.ParsedURL, error) {
	url = strings.TrimSpace(url)
	if cached, ok := s.cache.Get(url); ok {
		return cached.(*plugin.ParsedURL), nil
	}

	tracker, ok := s.registry.FindTrackerForURL(url)
	if !ok {
		return nil, ErrUnsupportedURL
	}
	parsed, err := tracker.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%s 解析地址失败: %w", tracker.Name(), err)
	}
	if parsed == nil {
		return nil, ErrUnsupportedURL
	}
	s.cache.Set(url, parsed, cache.DefaultExpiration)
	return parsed, nil
}

// AddTopic 由能解析该地址的 tracker 保存订阅
func (s *TopicService) AddTopic(url string, params plugin.TopicParams) (*model.Topic, error) {
	url = strings.TrimSpace(url)
	tracker, ok := s.registry.FindTrackerForURL(url)
	if !ok {
		return nil, ErrUnsupportedURL
	}

	var count int64
	if err := s.db.Model(&model.Topic{}).Where("url = ?", url).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrTopicExists
	}

	lock := s.registry.TrackerLock(tracker.Name())
	lock.Lock()
	defer lock.Unlock()

	topic, err := tracker.AddTopic(url, params)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(url)
	s.logger.Infof("添加订阅 %s (%s)", topic.DisplayName, tracker.Name())
	return topic, nil
}

// List 返回全部订阅，插件已移除的记录也按基础表返回
func (s *TopicService) List() ([]TopicView, error) {
	var topics []model.Topic
	if err := s.db.Order("display_name").Find(&topics).Error; err != nil {
		return nil, err
	}
	views := make([]TopicView, 0, len(topics))
	for _, topic := range topics {
		_, known := s.registry.Tracker(topic.Type)
		views = append(views, TopicView{Topic: topic, Known: known})
	}
	return views, nil
}

// Get 按 id 读取基础记录
func (s *TopicService) Get(id uint) (*model.Topic, error) {
	var topic model.Topic
	err := s.db.First(&topic, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTopicNotFound
	}
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

// Delete 删除基础记录，扩展表通过外键级联删除
func (s *TopicService) Delete(id uint) error {
	result := s.db.Delete(&model.Topic{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTopicNotFound
	}
	return nil
}

// SetPaused 暂停或恢复订阅
func (s *TopicService) SetPaused(id uint, paused bool) error {
	return s.update(id, "paused", paused)
}

// ResetStatus 把状态重置为 ok
func (s *TopicService) ResetStatus(id uint) error {
	return s.update(id, "status", model.TopicStatusOk)
}

func (s *TopicService) update(id uint, column string, value any) error {
	result := s.db.Model(&model.Topic{}).Where("id = ?", id).Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTopicNotFound
	}
	return nil
}

// IDsByStatuses 返回处于指定状态且未暂停的订阅 id
func (s *TopicService) IDsByStatuses(statuses []model.TopicStatus) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&model.Topic{}).
		Where("status IN ? AND paused = ?", statuses, false).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// IDsByTracker 返回属于指定 tracker 且未暂停的订阅 id
func (s *TopicService) IDsByTracker(tracker string) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&model.Topic{}).
		Where("type = ? AND paused = ?", tracker, false).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}
