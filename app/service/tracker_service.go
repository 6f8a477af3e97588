package service

import (
	"errors"

	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"
	"torrent-monitor/app/plugin"
)

var (
	ErrTrackerNotFound        = errors.New("tracker 不存在")
	ErrCredentialsUnsupported = errors.New("tracker 不需要登录")
)

// TrackerInfo tracker 列表项
type TrackerInfo struct {
	Name        string `json:"name"`
	Credentials bool   `json:"credentials"`
}

// TrackerService tracker 凭据管理与登录检查
type TrackerService struct {
	registry *plugin.Registry
	logger   *logger.Logger
}

// NewTrackerService 创建 tracker 服务
func NewTrackerService(registry *plugin.Registry, log *logger.Logger) *TrackerService {
	return &TrackerService{registry: registry, logger: log.Named("trackers")}
}

// List 按注册顺序列出 tracker
func (s *TrackerService) List() []TrackerInfo {
	trackers := s.registry.Trackers()
	out := make([]TrackerInfo, 0, len(trackers))
	for _, t := range trackers {
		_, withCredentials := t.(plugin.WithCredentials)
		out = append(out, TrackerInfo{Name: t.Name(), Credentials: withCredentials})
	}
	return out
}

func (s *TrackerService) credentialsTracker(name string) (plugin.WithCredentials, error) {
	tracker, ok := s.registry.Tracker(name)
	if !ok {
		return nil, ErrTrackerNotFound
	}
	creds, ok := tracker.(plugin.WithCredentials)
	if !ok {
		return nil, ErrCredentialsUnsupported
	}
	return creds, nil
}

// Credentials 返回保存的凭据，可能为 nil
func (s *TrackerService) Credentials(name string) (*model.TrackerCredentials, error) {
	creds, err := s.credentialsTracker(name)
	if err != nil {
		return nil, err
	}
	return creds.GetCredentials()
}

// UpdateCredentials 保存用户名和密码，与执行共用 tracker 锁
func (s *TrackerService) UpdateCredentials(name, username, password string) error {
	creds, err := s.credentialsTracker(name)
	if err != nil {
		return err
	}
	lock := s.registry.TrackerLock(name)
	lock.Lock()
	defer lock.Unlock()
	return creds.UpdateCredentials(username, password)
}

// Check 会话有效或重新登录成功时返回 LoginOk
func (s *TrackerService) Check(name string) (plugin.LoginResult, error) {
	creds, err := s.credentialsTracker(name)
	if err != nil {
		return plugin.LoginUnknown, err
	}
	lock := s.registry.TrackerLock(name)
	lock.Lock()
	defer lock.Unlock()

	if creds.Verify() {
		return plugin.LoginOk, nil
	}
	result := creds.Login()
	if result != plugin.LoginOk {
		s.logger.Warnf("%s 登录检查失败: %s", name, result)
	}
	return result, nil
}
