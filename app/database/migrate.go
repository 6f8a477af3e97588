package database

import (
	"errors"
	"fmt"

	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"
	"torrent-monitor/app/plugin"

	"gorm.io/gorm"
)

// AutoMigrate 迁移核心表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Topic{},
		&model.TrackerCredentials{},
		&model.TransmissionCredentials{},
		&model.Execute{},
		&model.ExecuteLog{},
		&model.ExecuteSettings{},
		&model.PluginVersion{},
		&model.SystemConfig{},
		&model.User{},
	)
}

// UpgradePlugins 按注册顺序检查每个插件的表结构版本，落后时调用插件的升级回调
func UpgradePlugins(db *gorm.DB, registry *plugin.Registry, log *logger.Logger) error {
	for _, tracker := range registry.Trackers() {
		upgradable, ok := tracker.(plugin.Upgradable)
		if !ok {
			continue
		}
		if err := upgradePlugin(db, tracker.Name(), upgradable, log); err != nil {
			return fmt.Errorf("升级插件 %s 失败: %w", tracker.Name(), err)
		}
	}
	return nil
}

// PluginVersion 返回记录中的插件版本，没有记录时 ok 为 false
func PluginVersion(db *gorm.DB, name string) (int, bool, error) {
	var pv model.PluginVersion
	err := db.Where("plugin = ?", name).First(&pv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pv.Version, true, nil
}

// upgradePlugin 升级和版本记录在同一事务中完成
// 没有版本记录按 0 处理，由插件自己判断是全新安装还是旧表
func upgradePlugin(db *gorm.DB, name string, p plugin.Upgradable, log *logger.Logger) error {
	return db.Transaction(func(tx *gorm.DB) error {
		current, _, err := PluginVersion(tx, name)
		if err != nil {
			return err
		}

		want := p.Version()
		if current > want {
			log.Warnf("插件 %s 的数据库版本 %d 高于程序版本 %d，跳过升级", name, current, want)
			return nil
		}
		if current == want {
			return nil
		}

		log.Infof("升级插件 %s 的表结构: %d -> %d", name, current, want)
		if err := p.Upgrade(tx, current); err != nil {
			return err
		}
		if models := p.Models(); len(models) > 0 {
			if err := tx.AutoMigrate(models...); err != nil {
				return err
			}
		}
		return tx.Save(&model.PluginVersion{Plugin: name, Version: want}).Error
	})
}
