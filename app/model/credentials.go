package model

import (
	"time"
)

// TrackerCredentials tracker 登录凭据，每个 tracker 最多一行
type TrackerCredentials struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	Tracker   string    `gorm:"uniqueIndex;size:64;not null;comment:tracker名称" json:"tracker"`
	Username  string    `gorm:"size:200;comment:登录名" json:"username"`
	Password  string    `gorm:"size:200;comment:密码" json:"-"`
	Cookies   string    `gorm:"type:text;comment:登录后获得的会话" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (TrackerCredentials) TableName() string {
	return "tracker_credentials"
}

// HasLogin 是否填写了用户名和密码
func (c *TrackerCredentials) HasLogin() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// TransmissionCredentials Transmission 连接设置，单行
type TransmissionCredentials struct {
	ID       uint   `gorm:"primarykey" json:"-"`
	Host     string `gorm:"size:200;not null" json:"host"`
	Port     int    `gorm:"default:9091" json:"port"`
	Path     string `gorm:"size:200;default:/transmission/rpc" json:"path"`
	Username string `gorm:"size:200" json:"username"`
	Password string `gorm:"size:200" json:"-"`
}

// TableName 指定表名
func (TransmissionCredentials) TableName() string {
	return "transmission_credentials"
}
