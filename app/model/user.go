package model

import (
	"time"
)

// User 用户模型，目前只有配置文件中的管理员
type User struct {
	ID        uint       `json:"id" gorm:"primarykey"`
	Username  string     `json:"username" gorm:"uniqueIndex;not null"`
	Password  string     `json:"-" gorm:"not null"` // json:"-" 确保密码不会被序列化
	IsActive  bool       `json:"is_active" gorm:"default:true"`
	IsAdmin   bool       `json:"is_admin" gorm:"default:false"`
	LastLogin *time.Time `json:"last_login"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
