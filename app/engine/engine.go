// Package engine 执行引擎：按注册顺序运行 tracker 插件，把种子交给下载客户端并记录执行日志
package engine

import (
	"fmt"
	"time"

	"torrent-monitor/app/logger"
	"torrent-monitor/app/metrics"
	"torrent-monitor/app/model"
	"torrent-monitor/app/plugin"
	"torrent-monitor/app/utils/torrentfile"
)

// TorrentClient 引擎使用的下载客户端能力，plugin.ClientsManager 实现该接口
type TorrentClient interface {
	FindTorrent(hash string) (*plugin.TorrentInfo, error)
	AddTorrent(content []byte, settings plugin.TopicSettings) (bool, error)
	RemoveTorrent(hash string) (bool, error)
}

// Engine 执行一次插件遍历
type Engine struct {
	registry *plugin.Registry
	client   TorrentClient
	log      Logger
	settings plugin.TrackerSettings
	logger   *logger.Logger
	now      func() time.Time
}

// New 创建引擎
func New(registry *plugin.Registry, client TorrentClient, log Logger, settings plugin.TrackerSettings, appLog *logger.Logger) *Engine {
	return &Engine{
		registry: registry,
		client:   client,
		log:      log,
		settings: settings,
		logger:   appLog.Named("engine"),
		now:      time.Now,
	}
}

type trackerTopics struct {
	tracker plugin.Tracker
	err     error
}

// Execute 对 ids 指定的订阅执行一次，ids 为空时执行全部可执行订阅
// 没有任何订阅时不创建执行记录
func (e *Engine) Execute(ids []uint) (err error) {
	var work []trackerTopics
	for _, tracker := range e.registry.Trackers() {
		topics, getErr := tracker.GetTopics(ids)
		if getErr == nil && len(topics) == 0 {
			continue
		}
		work = append(work, trackerTopics{tracker: tracker, err: getErr})
	}
	if len(work) == 0 {
		e.logger.Debugf("没有需要检查的订阅")
		return nil
	}

	start := e.now()
	if err := e.log.Started(start); err != nil {
		return err
	}

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("执行异常: %v", r)
		}
		status := model.ExecuteStatusFinished
		if runErr != nil {
			status = model.ExecuteStatusFailed
		}
		metrics.ExecutionsTotal.WithLabelValues(string(status)).Inc()
		metrics.ExecuteDuration.Observe(e.now().Sub(start).Seconds())
		err = e.log.Finished(e.now(), runErr)
	}()

	for _, item := range work {
		name := item.tracker.Name()
		if item.err != nil {
			metrics.TrackerFailuresTotal.WithLabelValues(name).Inc()
			e.log.Failed(fmt.Sprintf("读取 <b>%s</b> 的订阅失败: %v", name, item.err))
			continue
		}
		if trackerErr := e.executeTracker(item.tracker, ids); trackerErr != nil {
			metrics.TrackerFailuresTotal.WithLabelValues(name).Inc()
			e.log.Failed(fmt.Sprintf("执行 <b>%s</b> 失败: %v", name, trackerErr))
		}
	}
	return nil
}

// executeTracker 单个插件的错误和 panic 都在这里收住，不影响其他插件
// 登录与抓取持有同一把 tracker 锁，订阅在锁内重新读取，等待期间被暂停或删除的订阅不再抓取
func (e *Engine) executeTracker(tracker plugin.Tracker, ids []uint) (err error) {
	name := tracker.Name()
	lock := e.registry.TrackerLock(name)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("插件异常: %v", r)
		}
	}()

	if configurable, ok := tracker.(plugin.Configurable); ok {
		configurable.Init(e.settings)
	}

	if creds, ok := tracker.(plugin.WithCredentials); ok {
		if !e.ensureLogin(name, creds) {
			return nil
		}
	}

	topics, err := tracker.GetTopics(ids)
	if err != nil {
		return fmt.Errorf("读取订阅失败: %w", err)
	}
	if len(topics) == 0 {
		e.logger.Debugf("[%s] 订阅已暂停或删除，跳过", name)
		return nil
	}

	handle := &trackerHandle{engine: e, tracker: name}
	return tracker.Execute(topics, handle)
}

// ensureLogin 会话失效时重新登录，返回 false 表示跳过该插件
func (e *Engine) ensureLogin(name string, creds plugin.WithCredentials) bool {
	if creds.Verify() {
		e.log.Info(fmt.Sprintf("<b>%s</b> 的登录状态有效", name))
		return true
	}

	e.log.Info(fmt.Sprintf("<b>%s</b> 的登录状态失效，重新登录", name))
	switch result := creds.Login(); result {
	case plugin.LoginOk:
		e.log.Info(fmt.Sprintf("<b>%s</b> 登录成功", name))
		return true
	case plugin.LoginCredentialsNotSpecified:
		e.log.Info(fmt.Sprintf("<b>%s</b> 没有设置登录凭据，跳过", name))
		return false
	default:
		e.log.Failed(fmt.Sprintf("<b>%s</b> 登录失败: %s", name, result))
		return false
	}
}

// trackerHandle 交给单个插件的引擎能力
type trackerHandle struct {
	engine  *Engine
	tracker string
}

func (h *trackerHandle) Info(message string) {
	h.engine.log.Info(message)
}

func (h *trackerHandle) Failed(message string, err error) {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	h.engine.log.Failed(message)
}

func (h *trackerHandle) Downloaded(message string, torrent []byte) {
	h.engine.log.Downloaded(message, torrent)
}

func (h *trackerHandle) StatusChanged(topic *model.Topic, oldStatus, newStatus model.TopicStatus) {
	message := fmt.Sprintf("<b>%s</b> 状态变化: %s → %s", topic.DisplayName, oldStatus, newStatus)
	if newStatus == model.TopicStatusOk {
		h.engine.log.Info(message)
		return
	}
	h.engine.log.Warning(message)
}

// AddTorrent 客户端已有该种子时直接返回其添加时间；否则提交新种子并删除旧 hash 对应的种子
func (h *trackerHandle) AddTorrent(index int, filename string, torrent *torrentfile.File, oldHash string, settings plugin.TopicSettings) (time.Time, error) {
	client := h.engine.client
	h.engine.logger.Debugf("[%s] 第 %d 个订阅: 添加种子 %s", h.tracker, index+1, filename)

	existing, err := client.FindTorrent(torrent.InfoHash)
	if err != nil {
		return time.Time{}, fmt.Errorf("查找种子失败: %w", err)
	}
	if existing != nil {
		h.Info(fmt.Sprintf("种子 %s 已在下载客户端中", filename))
		return existing.DateAdded, nil
	}

	added, err := client.AddTorrent(torrent.Raw, settings)
	if err != nil {
		return time.Time{}, fmt.Errorf("添加种子失败: %w", err)
	}
	if !added {
		return time.Time{}, fmt.Errorf("种子 %s 没有被添加", filename)
	}
	metrics.TorrentsAddedTotal.WithLabelValues(h.tracker).Inc()

	var old *plugin.TorrentInfo
	if oldHash != "" {
		old, err = client.FindTorrent(oldHash)
		if err != nil {
			h.Failed(fmt.Sprintf("查找旧种子 %s 失败", oldHash), err)
		}
	}
	if old != nil {
		h.Info(fmt.Sprintf("更新种子 %s", filename))
		removed, err := client.RemoveTorrent(oldHash)
		switch {
		case err != nil:
			h.Failed(fmt.Sprintf("删除旧种子 %s 失败", old.Name), err)
		case !removed:
			h.Failed(fmt.Sprintf("删除旧种子 %s 失败", old.Name), nil)
		default:
			h.Info(fmt.Sprintf("已删除旧种子 %s", old.Name))
		}
	} else {
		h.Info(fmt.Sprintf("添加新种子 %s", filename))
	}

	info, err := client.FindTorrent(torrent.InfoHash)
	if err != nil {
		return time.Time{}, fmt.Errorf("查找种子失败: %w", err)
	}
	if info == nil {
		return time.Time{}, fmt.Errorf("种子 %s 没有被添加", filename)
	}
	return info.DateAdded, nil
}
