package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"torrent-monitor/app/model"

	"gorm.io/gorm"
)

var (
	// ErrExecuteInProgress Started 在上一次执行结束前被再次调用
	ErrExecuteInProgress = errors.New("已有执行正在进行")
	// ErrExecuteNotStarted 没有进行中的执行时写日志或结束执行
	ErrExecuteNotStarted = errors.New("没有正在进行的执行")
)

// ExecuteLogManager 把执行过程写入 execute / execute_log 两张表
// 当前执行 id 只保存在进程内，多进程部署时各进程看到的状态不一致
type ExecuteLogManager struct {
	db  *gorm.DB
	now func() time.Time

	mu        sync.Mutex
	currentID uint
}

// NewExecuteLogManager 创建日志管理器
func NewExecuteLogManager(db *gorm.DB) *ExecuteLogManager {
	return &ExecuteLogManager{db: db, now: time.Now}
}

// Started 创建执行记录，状态先记为失败，结束时间等于开始时间
func (m *ExecuteLogManager) Started(start time.Time) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentID != 0 {
		return 0, ErrExecuteInProgress
	}

	start = start.UTC()
	execute := model.Execute{
		StartTime:  start,
		FinishTime: start,
		Status:     model.ExecuteStatusFailed,
	}
	if err := m.db.Create(&execute).Error; err != nil {
		return 0, fmt.Errorf("创建执行记录失败: %w", err)
	}
	m.currentID = execute.ID
	return execute.ID, nil
}

// Finished 结束当前执行，runErr 为空时状态为 finished
func (m *ExecuteLogManager) Finished(finish time.Time, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentID == 0 {
		return ErrExecuteNotStarted
	}

	values := map[string]any{
		"finish_time": finish.UTC(),
		"status":      model.ExecuteStatusFinished,
	}
	if runErr != nil {
		values["status"] = model.ExecuteStatusFailed
		values["failed_message"] = runErr.Error()
	}

	id := m.currentID
	m.currentID = 0
	if err := m.db.Model(&model.Execute{}).Where("id = ?", id).Updates(values).Error; err != nil {
		return fmt.Errorf("更新执行记录失败: %w", err)
	}
	return nil
}

// LogEntry 向当前执行追加一条日志
func (m *ExecuteLogManager) LogEntry(message string, level model.LogLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentID == 0 {
		return ErrExecuteNotStarted
	}

	entry := model.ExecuteLog{
		ExecuteID: m.currentID,
		Time:      m.now().UTC(),
		Message:   message,
		Level:     level,
	}
	if err := m.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("写入执行日志失败: %w", err)
	}
	return nil
}

// GetLogEntries 按结束时间倒序分页返回执行摘要以及执行总数
func (m *ExecuteLogManager) GetLogEntries(skip, take int) ([]model.ExecuteSummary, int64, error) {
	var total int64
	if err := m.db.Model(&model.Execute{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var summaries []model.ExecuteSummary
	err := m.db.Table(model.Execute{}.TableName()).
		Select(`execute.*,
			(SELECT COUNT(*) FROM execute_log l WHERE l.execute_id = execute.id AND l.level = ?) AS downloaded,
			(SELECT COUNT(*) FROM execute_log l WHERE l.execute_id = execute.id AND l.level = ?) AS failed`,
			model.LogLevelDownloaded, model.LogLevelFailed).
		Order("execute.finish_time DESC, execute.id DESC").
		Offset(skip).
		Limit(take).
		Scan(&summaries).Error
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// GetExecuteLogDetails 返回一次执行的日志，after 非零时只返回 id 更大的条目
func (m *ExecuteLogManager) GetExecuteLogDetails(executeID uint, after uint) ([]model.ExecuteLog, error) {
	query := m.db.Where("execute_id = ?", executeID)
	if after > 0 {
		query = query.Where("id > ?", after)
	}
	var logs []model.ExecuteLog
	if err := query.Order("id").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// GetCurrentExecuteLogDetails 返回进行中执行的日志，没有进行中的执行时返回 nil
func (m *ExecuteLogManager) GetCurrentExecuteLogDetails(after uint) ([]model.ExecuteLog, error) {
	id, ok := m.CurrentExecuteID()
	if !ok {
		return nil, nil
	}
	return m.GetExecuteLogDetails(id, after)
}

// CurrentExecuteID 返回进行中的执行 id
func (m *ExecuteLogManager) CurrentExecuteID() (uint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID, m.currentID != 0
}

// IsRunning executeID 为 0 时判断是否有任意执行在进行
func (m *ExecuteLogManager) IsRunning(executeID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentID == 0 {
		return false
	}
	return executeID == 0 || executeID == m.currentID
}

// RemoveOldEntries 删除开始时间早于 days 天前的执行及其全部日志，进行中的执行不删除
func (m *ExecuteLogManager) RemoveOldEntries(days int) (int64, error) {
	cutoff := m.now().UTC().AddDate(0, 0, -days)
	current, _ := m.CurrentExecuteID()

	var removed int64
	err := m.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&model.Execute{}).
			Where("start_time <= ? AND id <> ?", cutoff, current).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("execute_id IN ?", ids).Delete(&model.ExecuteLog{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&model.Execute{})
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("清理执行日志失败: %w", err)
	}
	return removed, nil
}
