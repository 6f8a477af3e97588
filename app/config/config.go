package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Trackers TrackersConfig `mapstructure:"trackers"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port" validate:"required"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error fatal"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`   // json 或 text
	Output     string `mapstructure:"output" validate:"omitempty,oneof=stdout file"` // stdout 或 file
	Dir        string `mapstructure:"dir"`                                           // 日志目录
	MaxSize    int    `mapstructure:"max_size"`                                      // 兆字节
	MaxBackups int    `mapstructure:"max_backups"`                                   // 备份数量
	MaxAge     int    `mapstructure:"max_age"`                                       // 天数
	Compress   bool   `mapstructure:"compress"`                                      // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret" validate:"required"`  // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time" validate:"gt=0"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`                       // 签发者
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"` // sqlite 数据库文件
}

// EngineConfig 执行引擎配置
type EngineConfig struct {
	Interval           int    `mapstructure:"interval" validate:"gt=0"`              // 默认执行间隔（分钟），数据库中保存的值优先
	RequestsTimeout    int    `mapstructure:"requests_timeout" validate:"gt=0"`      // 插件网络请求超时（秒）
	LongPollTimeout    int    `mapstructure:"long_poll_timeout" validate:"gt=0"`     // 长轮询最长等待（秒）
	LongPollIntervalMs int    `mapstructure:"long_poll_interval_ms" validate:"gt=0"` // 长轮询检查间隔（毫秒）
	RetentionCron      string `mapstructure:"retention_cron" validate:"required"`    // 执行日志清理计划
	RetentionDays      int    `mapstructure:"retention_days" validate:"gt=0"`        // 默认保留天数
	DisableAutoExecute bool   `mapstructure:"disable_auto_execute"`                  // 只允许手动触发
}

// TrackersConfig 各 tracker 插件的配置
type TrackersConfig struct {
	Generic GenericTrackerConfig `mapstructure:"generic"`
}

type GenericTrackerConfig struct {
	LoginURL string `mapstructure:"login_url" validate:"omitempty,url"` // 需要登录的站点，用 Basic 认证请求该地址获取会话
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "6687")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.dir", "data/logs")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "torrent-monitor")

	viper.SetDefault("database.path", "data/torrent-monitor.db")

	// 引擎默认配置
	viper.SetDefault("engine.interval", 120)
	viper.SetDefault("engine.requests_timeout", 10)
	viper.SetDefault("engine.long_poll_timeout", 30)
	viper.SetDefault("engine.long_poll_interval_ms", 100)
	viper.SetDefault("engine.retention_cron", "@daily")
	viper.SetDefault("engine.retention_days", 30)
}

// Default 返回只包含默认值的配置，测试和一次性命令使用
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "6687"},
		Log:    LogConfig{Level: "info", Format: "text", Output: "stdout"},
		JWT:    JWTConfig{Secret: "your-secret-key-change-in-production", ExpireTime: 24, Issuer: "torrent-monitor"},
		Database: DatabaseConfig{
			Path: "data/torrent-monitor.db",
		},
		Engine: EngineConfig{
			Interval:           120,
			RequestsTimeout:    10,
			LongPollTimeout:    30,
			LongPollIntervalMs: 100,
			RetentionCron:      "@daily",
			RetentionDays:      30,
		},
	}
}

// RequestsTimeout 插件网络请求超时
func (c *Config) RequestsTimeout() time.Duration {
	return time.Duration(c.Engine.RequestsTimeout) * time.Second
}

// Interval 默认执行间隔
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Engine.Interval) * time.Minute
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("配置项无效: %w", err)
	}
	return nil
}
