package engine

import (
	"time"

	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"
)

// Logger 引擎输出执行事件的目标
type Logger interface {
	Started(start time.Time) error
	Finished(finish time.Time, err error) error
	Info(message string)
	Warning(message string)
	Failed(message string)
	Downloaded(message string, torrent []byte)
}

// DBLogger 把执行事件写入执行日志，同时输出到应用日志
type DBLogger struct {
	manager *ExecuteLogManager
	logger  *logger.Logger
}

// NewDBLogger 创建数据库日志
func NewDBLogger(manager *ExecuteLogManager, log *logger.Logger) *DBLogger {
	return &DBLogger{manager: manager, logger: log.Named("execute")}
}

func (l *DBLogger) Started(start time.Time) error {
	id, err := l.manager.Started(start)
	if err != nil {
		return err
	}
	l.logger.Infof("开始执行 #%d", id)
	return nil
}

func (l *DBLogger) Finished(finish time.Time, err error) error {
	if err != nil {
		l.logger.Errorf("执行失败: %v", err)
	} else {
		l.logger.Infof("执行结束")
	}
	return l.manager.Finished(finish, err)
}

func (l *DBLogger) Info(message string) {
	l.logger.Infof("%s", message)
	l.write(message, model.LogLevelInfo)
}

func (l *DBLogger) Warning(message string) {
	l.logger.Warnf("%s", message)
	l.write(message, model.LogLevelWarning)
}

func (l *DBLogger) Failed(message string) {
	l.logger.Errorf("%s", message)
	l.write(message, model.LogLevelFailed)
}

// Downloaded 种子内容不入库，只记录一条 downloaded 日志
func (l *DBLogger) Downloaded(message string, torrent []byte) {
	l.logger.Infof("%s (%d bytes)", message, len(torrent))
	l.write(message, model.LogLevelDownloaded)
}

func (l *DBLogger) write(message string, level model.LogLevel) {
	if err := l.manager.LogEntry(message, level); err != nil {
		l.logger.Errorf("写入执行日志失败: %v", err)
	}
}
