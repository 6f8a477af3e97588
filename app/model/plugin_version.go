package model

// PluginVersion 插件表结构的版本记录，升级驱动据此判断是否需要迁移
type PluginVersion struct {
	Plugin  string `gorm:"primaryKey;size:64" json:"plugin"`
	Version int    `gorm:"not null" json:"version"`
}

// TableName 指定表名
func (PluginVersion) TableName() string {
	return "plugin_versions"
}
