package database

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"torrent-monitor/app/config"
	"torrent-monitor/app/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 打开 sqlite 数据库，开启外键与 WAL
func Open(dbPath string) (*gorm.DB, error) {
	if err := ensureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=10000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(os.Stdout),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return db, nil
}

// newGormLogger 只输出警告和慢查询，查不到记录属于正常情况
func newGormLogger(w io.Writer) gormlogger.Interface {
	return gormlogger.New(stdlog.New(w, "\r\n", stdlog.LstdFlags), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Init 初始化数据库连接、迁移核心表并初始化管理员账户
// 插件表依赖注册表，由调用方在注册插件后通过 UpgradePlugins 升级
func Init(cfg *config.Config, log *logger.Logger) (*gorm.DB, error) {
	db, err := Open(cfg.Database.Path)
	if err != nil {
		log.Errorf("%v", err)
		return nil, err
	}
	log.Infof("数据库连接成功: %s", cfg.Database.Path)

	if err := AutoMigrate(db); err != nil {
		log.Errorf("迁移核心表失败: %v", err)
		return nil, err
	}

	if err := InitAdminUser(db, cfg, log); err != nil {
		log.Errorf("初始化管理员账户失败: %v", err)
		return nil, err
	}

	return db, nil
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ensureDir 确保目录存在
func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
