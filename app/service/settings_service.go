package service

import (
	"errors"
	"fmt"
	"strconv"

	"torrent-monitor/app/model"

	"gorm.io/gorm"
)

// SettingsService 读写 system_configs 中的键值设置
type SettingsService struct {
	db                   *gorm.DB
	defaultRetentionDays int
}

// NewSettingsService 创建设置服务
func NewSettingsService(db *gorm.DB, defaultRetentionDays int) *SettingsService {
	return &SettingsService{db: db, defaultRetentionDays: defaultRetentionDays}
}

// Get 没有记录时 ok 为 false
func (s *SettingsService) Get(key string) (string, bool, error) {
	var cfg model.SystemConfig
	err := s.db.Where("config_key = ?", key).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取配置 %s 失败: %w", key, err)
	}
	return cfg.ConfigValue, true, nil
}

// Set 写入或更新一项配置
func (s *SettingsService) Set(key, value, configType, description string) error {
	var cfg model.SystemConfig
	err := s.db.Where("config_key = ?", key).First(&cfg).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("读取配置 %s 失败: %w", key, err)
	}
	cfg.ConfigKey = key
	cfg.ConfigValue = value
	cfg.ConfigType = configType
	if description != "" {
		cfg.Description = description
	}
	if err := s.db.Save(&cfg).Error; err != nil {
		return fmt.Errorf("保存配置 %s 失败: %w", key, err)
	}
	return nil
}

// GetInt 读取整数配置，没有记录时返回 def
func (s *SettingsService) GetInt(key string, def int) (int, error) {
	value, ok, err := s.Get(key)
	if err != nil || !ok {
		return def, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, fmt.Errorf("配置 %s 不是整数: %q", key, value)
	}
	return n, nil
}

// DefaultClient 默认下载客户端名称，可能为空
func (s *SettingsService) DefaultClient() (string, error) {
	value, _, err := s.Get(model.ConfigKeyDefaultClient)
	return value, err
}

func (s *SettingsService) SetDefaultClient(name string) error {
	return s.Set(model.ConfigKeyDefaultClient, name, model.TypeString, "默认下载客户端")
}

// LogRetentionDays 执行日志保留天数
func (s *SettingsService) LogRetentionDays() (int, error) {
	return s.GetInt(model.ConfigKeyLogRetentionDays, s.defaultRetentionDays)
}

func (s *SettingsService) SetLogRetentionDays(days int) error {
	if days < 1 {
		return fmt.Errorf("保留天数必须大于 0")
	}
	return s.Set(model.ConfigKeyLogRetentionDays, strconv.Itoa(days), model.TypeInt, "执行日志保留天数")
}
