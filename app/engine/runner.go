package engine

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"torrent-monitor/app/logger"
)

// Executor 被调度的一次执行
type Executor interface {
	Execute(ids []uint) error
}

// State 调度器状态
type State int

const (
	StateIdle State = iota
	StateExecuting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Runner 后台调度器，同一时间只有一次执行
// 执行期间收到的请求合并为一次，在当前执行结束后立即运行
type Runner struct {
	executor    Executor
	store       SettingsStore
	logger      *logger.Logger
	now         func() time.Time
	autoExecute bool

	mu          sync.Mutex
	interval    time.Duration
	lastExecute *time.Time
	startedAt   time.Time
	state       State
	pending     bool
	pendingAll  bool
	pendingIDs  []uint

	wake      chan struct{}
	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// RunnerOption 调度器选项
type RunnerOption func(*Runner)

// WithoutAutoExecute 只响应手动触发
func WithoutAutoExecute() RunnerOption {
	return func(r *Runner) {
		r.autoExecute = false
	}
}

// WithClock 替换时间来源，测试使用
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner 创建调度器，store 中没有保存间隔时使用 defaultInterval
func NewRunner(executor Executor, store SettingsStore, defaultInterval time.Duration, log *logger.Logger, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		executor:    executor,
		store:       store,
		logger:      log.Named("runner"),
		now:         time.Now,
		autoExecute: true,
		interval:    defaultInterval,
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	interval, lastExecute, ok, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("读取执行设置失败: %w", err)
	}
	if ok && interval > 0 {
		r.interval = interval
	}
	r.lastExecute = lastExecute
	return r, nil
}

// Start 启动后台协程，重复调用无效
func (r *Runner) Start() {
	r.startOnce.Do(func() {
		r.mu.Lock()
		r.startedAt = r.now()
		r.mu.Unlock()

		r.wg.Add(1)
		go r.run()
		r.logger.Infof("执行调度已启动，间隔 %s", r.Interval())
	})
}

// Stop 等待进行中的执行结束后退出，未处理的请求被丢弃
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()

		r.mu.Lock()
		r.state = StateStopped
		r.pending = false
		r.pendingIDs = nil
		r.mu.Unlock()
		r.logger.Infof("执行调度已停止")
	})
}

// Execute 请求执行，立即返回；ids 为空表示全部订阅
func (r *Runner) Execute(ids []uint) {
	r.mu.Lock()
	if r.state == StateStopped {
		r.mu.Unlock()
		r.logger.Warnf("调度已停止，忽略执行请求")
		return
	}
	switch {
	case !r.pending:
		r.pending = true
		r.pendingAll = len(ids) == 0
		r.pendingIDs = slices.Clone(ids)
	case r.pendingAll:
	case len(ids) == 0:
		r.pendingAll = true
		r.pendingIDs = nil
	default:
		for _, id := range ids {
			if !slices.Contains(r.pendingIDs, id) {
				r.pendingIDs = append(r.pendingIDs, id)
			}
		}
	}
	r.mu.Unlock()
	r.signal()
}

func (r *Runner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Interval 当前执行间隔
func (r *Runner) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// SetInterval 保存新的间隔并重新计算下次执行时间，不会立即执行
func (r *Runner) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("执行间隔必须大于 0")
	}
	if err := r.store.SaveInterval(interval); err != nil {
		return fmt.Errorf("保存执行间隔失败: %w", err)
	}
	r.mu.Lock()
	r.interval = interval
	r.mu.Unlock()
	r.signal()
	return nil
}

// LastExecute 上次执行结束的时间
func (r *Runner) LastExecute() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastExecute == nil {
		return nil
	}
	t := *r.lastExecute
	return &t
}

// State 当前状态
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// nextDelay 距离下次定时执行的时间，返回 false 表示不定时执行
func (r *Runner) nextDelay() (time.Duration, bool) {
	if !r.autoExecute || r.interval <= 0 {
		return 0, false
	}
	base := r.startedAt
	if r.lastExecute != nil {
		base = *r.lastExecute
	}
	delay := base.Add(r.interval).Sub(r.now())
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// takePending 取出合并后的请求
func (r *Runner) takePending() ([]uint, bool) {
	if !r.pending {
		return nil, false
	}
	ids := r.pendingIDs
	if r.pendingAll {
		ids = nil
	}
	r.pending = false
	r.pendingAll = false
	r.pendingIDs = nil
	return ids, true
}

func (r *Runner) run() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		r.mu.Lock()
		ids, requested := r.takePending()
		delay, scheduled := r.nextDelay()
		r.mu.Unlock()

		if !requested {
			var timeout <-chan time.Time
			var timer *time.Timer
			if scheduled {
				timer = time.NewTimer(delay)
				timeout = timer.C
			}
			select {
			case <-r.stopCh:
				if timer != nil {
					timer.Stop()
				}
				return
			case <-r.wake:
				// 手动请求或间隔变化，重新计算
				if timer != nil {
					timer.Stop()
				}
				continue
			case <-timeout:
			}
		}

		r.executeOnce(ids)
	}
}

// executeOnce 执行的错误和 panic 只记录日志，调度继续
func (r *Runner) executeOnce(ids []uint) {
	r.mu.Lock()
	r.state = StateExecuting
	r.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("执行异常: %v", rec)
		}

		finished := r.now()
		r.mu.Lock()
		r.lastExecute = &finished
		if r.state == StateExecuting {
			r.state = StateIdle
		}
		r.mu.Unlock()

		if err := r.store.SaveLastExecute(finished); err != nil {
			r.logger.Errorf("保存上次执行时间失败: %v", err)
		}
	}()

	if err := r.executor.Execute(ids); err != nil {
		r.logger.Errorf("执行失败: %v", err)
	}
}
