package database

import (
	"errors"
	"fmt"

	"torrent-monitor/app/config"
	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"
	"torrent-monitor/app/auth"

	"gorm.io/gorm"
)

// InitAdminUser 按配置文件创建或更新管理员账户
func InitAdminUser(db *gorm.DB, cfg *config.Config, log *logger.Logger) error {
	// 检查配置文件中是否有管理员用户名和密码
	if cfg.Server.Username == "" || cfg.Server.Password == "" {
		log.Errorf("配置文件中未设置管理员账户，请在配置文件中设置 username 和 password")
		return fmt.Errorf("管理员账户配置不能为空，请在配置文件中设置 username 和 password")
	}

	var existingAdmin model.User
	result := db.Where("is_admin = ?", true).First(&existingAdmin)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询管理员账户失败: %w", result.Error)
	}

	if result.Error == nil {
		// 管理员用户已存在，检查是否需要更新用户名和密码
		needUpdate := false

		if existingAdmin.Username != cfg.Server.Username {
			oldUsername := existingAdmin.Username
			existingAdmin.Username = cfg.Server.Username
			needUpdate = true
			log.Infof("管理员用户名从 '%s' 更新为 '%s'", oldUsername, cfg.Server.Username)
		}

		if !auth.VerifyPassword(cfg.Server.Password, existingAdmin.Password) {
			expectedHash, err := auth.HashPassword(cfg.Server.Password)
			if err != nil {
				return fmt.Errorf("哈希密码失败: %w", err)
			}
			existingAdmin.Password = expectedHash
			needUpdate = true
			log.Infof("管理员 '%s' 密码已更新", cfg.Server.Username)
		}

		if needUpdate {
			if err := db.Save(&existingAdmin).Error; err != nil {
				return fmt.Errorf("更新管理员账户失败: %w", err)
			}
		}
		return nil
	}

	hashedPassword, err := auth.HashPassword(cfg.Server.Password)
	if err != nil {
		return fmt.Errorf("哈希密码失败: %w", err)
	}

	adminUser := model.User{
		Username: cfg.Server.Username,
		Password: hashedPassword,
		IsActive: true,
		IsAdmin:  true,
	}
	if err := db.Create(&adminUser).Error; err != nil {
		return fmt.Errorf("创建管理员账户失败: %w", err)
	}

	log.Infof("管理员账户 '%s' 创建成功", cfg.Server.Username)
	return nil
}
