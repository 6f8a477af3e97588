package plugin

import (
	"errors"
	"fmt"

	"torrent-monitor/app/model"

	"gorm.io/gorm"
)

// CredentialsStore tracker 凭据存储
type CredentialsStore struct {
	db *gorm.DB
}

// NewCredentialsStore 创建凭据存储
func NewCredentialsStore(db *gorm.DB) *CredentialsStore {
	return &CredentialsStore{db: db}
}

// Get 返回 tracker 的凭据，没有记录时返回 nil, nil
func (s *CredentialsStore) Get(tracker string) (*model.TrackerCredentials, error) {
	var creds model.TrackerCredentials
	err := s.db.Where("tracker = ?", tracker).First(&creds).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取 %s 凭据失败: %w", tracker, err)
	}
	return &creds, nil
}

// Update 保存用户名和密码，旧会话随之失效
func (s *CredentialsStore) Update(tracker, username, password string) error {
	creds, err := s.Get(tracker)
	if err != nil {
		return err
	}
	if creds == nil {
		creds = &model.TrackerCredentials{Tracker: tracker}
	}
	creds.Username = username
	creds.Password = password
	creds.Cookies = ""
	return s.db.Save(creds).Error
}

// SaveCookies 登录成功后保存会话
func (s *CredentialsStore) SaveCookies(tracker, cookies string) error {
	result := s.db.Model(&model.TrackerCredentials{}).Where("tracker = ?", tracker).Update("cookies", cookies)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s 没有保存凭据", tracker)
	}
	return nil
}
