package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"torrent-monitor/app/engine"
	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ExecuteRunner 后台执行器
type ExecuteRunner interface {
	Execute(ids []uint)
	Interval() time.Duration
	SetInterval(interval time.Duration) error
	LastExecute() *time.Time
	State() engine.State
}

// ExecuteLogs 执行日志查询
type ExecuteLogs interface {
	GetLogEntries(skip, take int) ([]model.ExecuteSummary, int64, error)
	GetExecuteLogDetails(executeID uint, after uint) ([]model.ExecuteLog, error)
	GetCurrentExecuteLogDetails(after uint) ([]model.ExecuteLog, error)
	IsRunning(executeID uint) bool
}

// TopicSelector 按状态或 tracker 选出订阅 id
type TopicSelector interface {
	IDsByStatuses(statuses []model.TopicStatus) ([]uint, error)
	IDsByTracker(tracker string) ([]uint, error)
}

// LongPoll 长轮询参数
type LongPoll struct {
	Timeout  time.Duration
	Interval time.Duration
}

// ExecuteHandler 执行触发、间隔设置与日志查询
type ExecuteHandler struct {
	ResponseHelper
	runner   ExecuteRunner
	logs     ExecuteLogs
	topics   TopicSelector
	poll     LongPoll
	validate *validator.Validate
	logger   *logger.Logger
}

// NewExecuteHandler 创建执行处理器
func NewExecuteHandler(runner ExecuteRunner, logs ExecuteLogs, topics TopicSelector, poll LongPoll, log *logger.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		runner:   runner,
		logs:     logs,
		topics:   topics,
		poll:     poll,
		validate: validator.New(),
		logger:   log.Named("execute"),
	}
}

// IntervalRequest 执行间隔，单位分钟
type IntervalRequest struct {
	Interval int `json:"interval" validate:"min=1"`
}

// ExecuteSettingsResponse 执行设置
type ExecuteSettingsResponse struct {
	Interval    int        `json:"interval"`
	LastExecute *time.Time `json:"last_execute"`
	State       string     `json:"state"`
}

// LogTailResponse 长轮询结果
type LogTailResponse struct {
	IsRunning bool               `json:"is_running"`
	Logs      []model.ExecuteLog `json:"logs"`
}

// LogEntriesResponse 执行摘要分页
type LogEntriesResponse struct {
	Data  []model.ExecuteSummary `json:"data"`
	Count int64                  `json:"count"`
}

// Execute 触发一次执行
// ids、statuses、tracker 三个参数互斥，都不传时执行全部可执行的订阅
func (h *ExecuteHandler) Execute(c *gin.Context) {
	idsParam := strings.TrimSpace(c.Query("ids"))
	statusesParam := strings.TrimSpace(c.Query("statuses"))
	trackerParam := strings.TrimSpace(c.Query("tracker"))

	given := 0
	for _, p := range []string{idsParam, statusesParam, trackerParam} {
		if p != "" {
			given++
		}
	}
	if given > 1 {
		h.error(c, http.StatusBadRequest, 400, "ids、statuses 与 tracker 只能指定一个")
		return
	}

	var ids []uint
	switch {
	case idsParam != "":
		parsed, err := parseIDs(idsParam)
		if err != nil {
			h.error(c, http.StatusBadRequest, 400, err.Error())
			return
		}
		ids = parsed
	case statusesParam != "":
		statuses, err := parseStatuses(statusesParam)
		if err != nil {
			h.error(c, http.StatusBadRequest, 400, err.Error())
			return
		}
		found, err := h.topics.IDsByStatuses(statuses)
		if err != nil {
			h.error(c, http.StatusInternalServerError, 500, "查询订阅失败: "+err.Error())
			return
		}
		if len(found) == 0 {
			h.error(c, http.StatusConflict, 409, "没有处于这些状态的订阅")
			return
		}
		ids = found
	case trackerParam != "":
		found, err := h.topics.IDsByTracker(trackerParam)
		if err != nil {
			h.error(c, http.StatusInternalServerError, 500, "查询订阅失败: "+err.Error())
			return
		}
		if len(found) == 0 {
			h.error(c, http.StatusConflict, 409, "tracker "+trackerParam+" 没有可执行的订阅")
			return
		}
		ids = found
	}

	h.runner.Execute(ids)
	c.Status(http.StatusNoContent)
}

func parseIDs(s string) ([]uint, error) {
	parts := strings.Split(s, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil || id == 0 {
			return nil, &paramError{name: "ids", value: part}
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func parseStatuses(s string) ([]model.TopicStatus, error) {
	parts := strings.Split(s, ",")
	statuses := make([]model.TopicStatus, 0, len(parts))
	for _, part := range parts {
		status, err := model.ParseTopicStatus(part)
		if err != nil {
			return nil, &paramError{name: "statuses", value: part}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return "参数 " + e.name + " 无效: " + strconv.Quote(e.value)
}

// GetSettings 返回执行间隔（分钟）与上次执行时间
func (h *ExecuteHandler) GetSettings(c *gin.Context) {
	h.success(c, ExecuteSettingsResponse{
		Interval:    int(h.runner.Interval() / time.Minute),
		LastExecute: h.runner.LastExecute(),
		State:       h.runner.State().String(),
	}, "success")
}

// UpdateSettings 修改执行间隔，不触发执行
func (h *ExecuteHandler) UpdateSettings(c *gin.Context) {
	var req IntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "执行间隔至少为 1 分钟")
		return
	}
	if err := h.runner.SetInterval(time.Duration(req.Interval) * time.Minute); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "保存执行间隔失败: "+err.Error())
		return
	}
	h.logger.Infof("执行间隔修改为 %d 分钟", req.Interval)
	h.success(c, ExecuteSettingsResponse{
		Interval:    req.Interval,
		LastExecute: h.runner.LastExecute(),
		State:       h.runner.State().String(),
	}, "保存成功")
}

// Current 长轮询当前执行的日志
// 有新日志、执行开始或结束、超时、客户端断开时返回
func (h *ExecuteHandler) Current(c *gin.Context) {
	after, ok := h.queryUint(c, "after")
	if !ok {
		return
	}

	wasRunning := h.logs.IsRunning(0)
	result, err := h.tail(c.Request.Context(), func() (LogTailResponse, bool, error) {
		logs, err := h.logs.GetCurrentExecuteLogDetails(after)
		if err != nil {
			return LogTailResponse{}, false, err
		}
		running := h.logs.IsRunning(0)
		done := len(logs) > 0 || running != wasRunning
		return LogTailResponse{IsRunning: running, Logs: logs}, done, nil
	})
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "读取执行日志失败: "+err.Error())
		return
	}
	h.success(c, result, "success")
}

// Details 长轮询指定执行的日志，执行已结束时立即返回
func (h *ExecuteHandler) Details(c *gin.Context) {
	executeID, err := strconv.ParseUint(c.Param("execute_id"), 10, 64)
	if err != nil || executeID == 0 {
		h.error(c, http.StatusBadRequest, 400, "无效的执行 id")
		return
	}
	after, ok := h.queryUint(c, "after")
	if !ok {
		return
	}

	result, err := h.tail(c.Request.Context(), func() (LogTailResponse, bool, error) {
		logs, err := h.logs.GetExecuteLogDetails(uint(executeID), after)
		if err != nil {
			return LogTailResponse{}, false, err
		}
		running := h.logs.IsRunning(uint(executeID))
		return LogTailResponse{IsRunning: running, Logs: logs}, len(logs) > 0 || !running, nil
	})
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "读取执行日志失败: "+err.Error())
		return
	}
	h.success(c, result, "success")
}

// tail 按固定间隔重复 check，直到 done、超时或 ctx 结束，返回最后一次结果
func (h *ExecuteHandler) tail(ctx context.Context, check func() (LogTailResponse, bool, error)) (LogTailResponse, error) {
	deadline := time.NewTimer(h.poll.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(h.poll.Interval)
	defer ticker.Stop()

	for {
		result, done, err := check()
		if result.Logs == nil {
			result.Logs = []model.ExecuteLog{}
		}
		if err != nil || done {
			return result, err
		}
		select {
		case <-ctx.Done():
			return result, nil
		case <-deadline.C:
			return result, nil
		case <-ticker.C:
		}
	}
}

// Logs 分页返回执行摘要
func (h *ExecuteHandler) Logs(c *gin.Context) {
	takeParam := c.Query("take")
	if takeParam == "" {
		h.error(c, http.StatusBadRequest, 400, "缺少参数 take")
		return
	}
	take, err := strconv.Atoi(takeParam)
	if err != nil || take < 1 || take > 100 {
		h.error(c, http.StatusBadRequest, 400, "take 必须在 1 到 100 之间")
		return
	}
	skip := 0
	if skipParam := c.Query("skip"); skipParam != "" {
		skip, err = strconv.Atoi(skipParam)
		if err != nil || skip < 0 {
			h.error(c, http.StatusBadRequest, 400, "skip 不能小于 0")
			return
		}
	}

	entries, count, err := h.logs.GetLogEntries(skip, take)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "读取执行记录失败: "+err.Error())
		return
	}
	if entries == nil {
		entries = []model.ExecuteSummary{}
	}
	h.success(c, LogEntriesResponse{Data: entries, Count: count}, "success")
}

// queryUint 解析可选的非负整数参数，失败时已写入 400
func (h *ExecuteHandler) queryUint(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, (&paramError{name: name, value: raw}).Error())
		return 0, false
	}
	return uint(value), true
}
