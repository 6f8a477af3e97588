package engine

import (
	"errors"
	"sync"
	"time"

	"torrent-monitor/app/model"

	"gorm.io/gorm"
)

// SettingsStore 保存执行间隔与上次执行时间
type SettingsStore interface {
	// Load 没有保存过设置时 ok 为 false
	Load() (interval time.Duration, lastExecute *time.Time, ok bool, err error)
	SaveInterval(interval time.Duration) error
	SaveLastExecute(lastExecute time.Time) error
}

// MemorySettingsStore 进程内存储，重启后丢失
type MemorySettingsStore struct {
	mu          sync.Mutex
	saved       bool
	interval    time.Duration
	lastExecute *time.Time
}

func (s *MemorySettingsStore) Load() (time.Duration, *time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval, s.lastExecute, s.saved, nil
}

func (s *MemorySettingsStore) SaveInterval(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = true
	s.interval = interval
	return nil
}

func (s *MemorySettingsStore) SaveLastExecute(lastExecute time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastExecute = &lastExecute
	return nil
}

// DBSettingsStore 保存在 settings_execute 表的单行中
type DBSettingsStore struct {
	db *gorm.DB
}

// NewDBSettingsStore 创建数据库设置存储
func NewDBSettingsStore(db *gorm.DB) *DBSettingsStore {
	return &DBSettingsStore{db: db}
}

func (s *DBSettingsStore) row() (*model.ExecuteSettings, error) {
	var settings model.ExecuteSettings
	err := s.db.Order("id").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *DBSettingsStore) Load() (time.Duration, *time.Time, bool, error) {
	settings, err := s.row()
	if err != nil || settings == nil {
		return 0, nil, false, err
	}
	return time.Duration(settings.Interval) * time.Second, settings.LastExecute, true, nil
}

func (s *DBSettingsStore) SaveInterval(interval time.Duration) error {
	return s.update(func(settings *model.ExecuteSettings) {
		settings.Interval = int64(interval / time.Second)
	})
}

func (s *DBSettingsStore) SaveLastExecute(lastExecute time.Time) error {
	return s.update(func(settings *model.ExecuteSettings) {
		t := lastExecute.UTC()
		settings.LastExecute = &t
	})
}

func (s *DBSettingsStore) update(apply func(*model.ExecuteSettings)) error {
	settings, err := s.row()
	if err != nil {
		return err
	}
	if settings == nil {
		settings = &model.ExecuteSettings{}
	}
	apply(settings)
	return s.db.Save(settings).Error
}
