package model

import (
	"time"
)

// SystemConfig 系统配置模型
type SystemConfig struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	ConfigKey   string    `gorm:"uniqueIndex;not null;size:100;comment:配置键" json:"config_key"`
	ConfigValue string    `gorm:"type:text;comment:配置值" json:"config_value"`
	ConfigType  string    `gorm:"size:20;default:string;comment:配置类型(string,int,bool)" json:"config_type"`
	Description string    `gorm:"size:200;comment:配置描述" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (SystemConfig) TableName() string {
	return "system_configs"
}

// 配置键常量
const (
	ConfigKeyLogRetentionDays = "execute.log_retention_days" // 执行日志保留天数
	ConfigKeyDefaultClient    = "clients.default"            // 默认下载客户端
)

// ConfigType 配置类型常量
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeBool   = "bool"
)
