package model

import (
	"time"
)

// ExecuteStatus 执行状态
type ExecuteStatus string

const (
	ExecuteStatusFinished ExecuteStatus = "finished"
	ExecuteStatusFailed   ExecuteStatus = "failed"
)

// LogLevel 执行日志级别
type LogLevel string

const (
	LogLevelInfo       LogLevel = "info"
	LogLevelWarning    LogLevel = "warning"
	LogLevelFailed     LogLevel = "failed"
	LogLevelDownloaded LogLevel = "downloaded"
)

// Execute 一次引擎执行
// 创建时状态为 failed、结束时间等于开始时间，进程中途崩溃时记录保持失败状态
type Execute struct {
	ID            uint          `gorm:"primarykey" json:"id"`
	StartTime     time.Time     `gorm:"not null;index;comment:开始时间" json:"start_time"`
	FinishTime    time.Time     `gorm:"not null;index;comment:结束时间" json:"finish_time"`
	Status        ExecuteStatus `gorm:"size:20;not null;default:failed;comment:状态" json:"status"`
	FailedMessage *string       `gorm:"type:text;comment:失败信息" json:"failed_message"`
}

// TableName 指定表名
func (Execute) TableName() string {
	return "execute"
}

// ExecuteLog 执行过程中的日志条目，只追加不修改
type ExecuteLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ExecuteID uint      `gorm:"not null;index;comment:所属执行" json:"execute_id"`
	Time      time.Time `gorm:"not null;comment:记录时间" json:"time"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Level     LogLevel  `gorm:"size:20;not null;index" json:"level"`
}

// TableName 指定表名
func (ExecuteLog) TableName() string {
	return "execute_log"
}

// ExecuteSummary 列表页使用的执行摘要
type ExecuteSummary struct {
	Execute
	Downloaded int64 `json:"downloaded"`
	Failed     int64 `json:"failed"`
}

// ExecuteSettings 定时执行设置，单行
type ExecuteSettings struct {
	ID          uint       `gorm:"primarykey" json:"-"`
	Interval    int64      `gorm:"not null;comment:执行间隔(秒)" json:"interval"`
	LastExecute *time.Time `gorm:"comment:上次执行时间" json:"last_execute"`
}

// TableName 指定表名
func (ExecuteSettings) TableName() string {
	return "settings_execute"
}
