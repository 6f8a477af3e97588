package plugin

import (
	"fmt"
	"strings"
	"sync"
)

// Registry 进程启动时构建的插件注册表，按引用传给引擎和 HTTP 层
// 注册只在启动阶段进行，之后只读
type Registry struct {
	trackers []Tracker
	byName   map[string]Tracker
	locks    map[string]*sync.Mutex
	clients  []Client
	byClient map[string]Client
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]Tracker),
		locks:    make(map[string]*sync.Mutex),
		byClient: make(map[string]Client),
	}
}

// RegisterTracker 注册 tracker，保持注册顺序
func (r *Registry) RegisterTracker(t Tracker) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tracker 名称不能为空")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("tracker 已注册: %s", name)
	}
	r.trackers = append(r.trackers, t)
	r.byName[name] = t
	r.locks[name] = &sync.Mutex{}
	return nil
}

// RegisterClient 注册下载客户端
func (r *Registry) RegisterClient(c Client) error {
	name := c.Name()
	if _, exists := r.byClient[name]; exists {
		return fmt.Errorf("下载客户端已注册: %s", name)
	}
	r.clients = append(r.clients, c)
	r.byClient[name] = c
	return nil
}

// Trackers 按注册顺序返回所有 tracker
func (r *Registry) Trackers() []Tracker {
	out := make([]Tracker, len(r.trackers))
	copy(out, r.trackers)
	return out
}

// Tracker 按名称查找，已移除插件留下的记录会得到 false
func (r *Registry) Tracker(name string) (Tracker, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// TrackerLock 同一 tracker 的登录与抓取共用这把锁
func (r *Registry) TrackerLock(name string) *sync.Mutex {
	return r.locks[name]
}

// FindTrackerForURL 返回第一个能解析该地址的 tracker
func (r *Registry) FindTrackerForURL(url string) (Tracker, bool) {
	url = strings.TrimSpace(url)
	for _, t := range r.trackers {
		if t.CanParseURL(url) {
			return t, true
		}
	}
	return nil, false
}

// Clients 按注册顺序返回所有客户端
func (r *Registry) Clients() []Client {
	out := make([]Client, len(r.clients))
	copy(out, r.clients)
	return out
}

// Client 按名称查找客户端
func (r *Registry) Client(name string) (Client, bool) {
	c, ok := r.byClient[name]
	return c, ok
}
