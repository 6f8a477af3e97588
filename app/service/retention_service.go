package service

import (
	"fmt"
	"sync"

	"torrent-monitor/app/logger"

	"github.com/robfig/cron/v3"
)

// LogCleaner 按天数清理执行日志
type LogCleaner interface {
	RemoveOldEntries(days int) (int64, error)
}

// RetentionDays 提供当前保留天数
type RetentionDays interface {
	LogRetentionDays() (int, error)
}

// RetentionService 定时清理过期的执行日志
type RetentionService struct {
	cleaner  LogCleaner
	settings RetentionDays
	spec     string
	logger   *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewRetentionService 创建清理服务，spec 为 cron 表达式，支持 @daily 等描述符
func NewRetentionService(cleaner LogCleaner, settings RetentionDays, spec string, log *logger.Logger) *RetentionService {
	return &RetentionService{
		cleaner:  cleaner,
		settings: settings,
		spec:     spec,
		logger:   log.Named("retention"),
	}
}

// Start 启动定时任务
func (s *RetentionService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() {
		if _, err := s.Cleanup(); err != nil {
			s.logger.Errorf("%v", err)
		}
	}); err != nil {
		return fmt.Errorf("无效的清理计划 %q: %w", s.spec, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.logger.Infof("执行日志清理任务已启动: %s", s.spec)
	return nil
}

// Stop 停止定时任务并等待正在进行的清理完成
func (s *RetentionService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Infof("执行日志清理任务已停止")
}

// Cleanup 立即清理一次，返回删除的执行数
func (s *RetentionService) Cleanup() (int64, error) {
	days, err := s.settings.LogRetentionDays()
	if err != nil {
		return 0, fmt.Errorf("读取保留天数失败: %w", err)
	}
	removed, err := s.cleaner.RemoveOldEntries(days)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Infof("已清理 %d 天前的 %d 次执行记录", days, removed)
	}
	return removed, nil
}
