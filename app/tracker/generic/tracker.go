// Package generic 通用 tracker：订阅地址是种子文件本身，或是包含种子链接的页面
package generic

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"torrent-monitor/app/database"
	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"
	"torrent-monitor/app/plugin"
	"torrent-monitor/app/utils/downloader"
	"torrent-monitor/app/utils/torrentfile"

	"github.com/PuerkitoBio/goquery"
	"gorm.io/gorm"
)

// Name 插件名称，同时是 topics.type 的值
const Name = "generic"

// ErrNoTorrentLink 页面中找不到种子链接
var ErrNoTorrentLink = errors.New("页面中没有种子链接")

// Tracker 通用 tracker 插件
type Tracker struct {
	db          *gorm.DB
	downloader  *downloader.Downloader
	credentials *plugin.CredentialsStore
	logger      *logger.Logger

	loginURL  string
	loginHost string

	mu      sync.Mutex
	session *downloader.Auth
}

// Option generic tracker 选项
type Option func(*Tracker)

// WithLoginURL 设置登录地址，只对同一主机的请求附带会话
func WithLoginURL(loginURL string) Option {
	return func(t *Tracker) {
		u, err := url.Parse(loginURL)
		if err != nil || u.Host == "" {
			return
		}
		t.loginURL = loginURL
		t.loginHost = u.Host
	}
}

// New 创建通用 tracker
func New(db *gorm.DB, log *logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		db:          db,
		downloader:  downloader.New(nil),
		credentials: plugin.NewCredentialsStore(db),
		logger:      log.Named(Name),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Name() string {
	return Name
}

// Init 每次执行前由引擎调用
func (t *Tracker) Init(settings plugin.TrackerSettings) {
	t.downloader.SetTimeout(settings.RequestsTimeout)
}

// CanParseURL 接受任意 http(s) 地址
func (t *Tracker) CanParseURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ParseURL 请求地址，识别种子文件或包含种子链接的页面
func (t *Tracker) ParseURL(rawURL string) (*plugin.ParsedURL, error) {
	if !t.CanParseURL(rawURL) {
		return nil, nil
	}

	res, err := t.get(rawURL)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		t.logger.Warnf("解析地址 %s 返回状态码 %d", rawURL, res.StatusCode)
		return nil, nil
	}

	if torrent, err := torrentfile.Parse(res.Content); err == nil {
		title := torrent.Name
		if title == "" {
			title = strings.TrimSuffix(res.Filename, ".torrent")
		}
		return &plugin.ParsedURL{
			Tracker: Name,
			URL:     rawURL,
			Title:   title,
			Extra:   map[string]string{"torrent_url": rawURL},
		}, nil
	}

	title, link, err := parsePage(rawURL, res.Content)
	if errors.Is(err, ErrNoTorrentLink) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plugin.ParsedURL{
		Tracker: Name,
		URL:     rawURL,
		Title:   title,
		Extra:   map[string]string{"torrent_url": link},
	}, nil
}

// parsePage 取页面标题与第一个种子链接，相对地址按页面地址解析
func parsePage(pageURL string, content []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", "", fmt.Errorf("解析页面失败: %w", err)
	}

	href, ok := doc.Find(`a[href$=".torrent"]`).First().Attr("href")
	if !ok || href == "" {
		return "", "", ErrNoTorrentLink
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", "", fmt.Errorf("种子链接无效 %q: %w", href, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSuffix(path.Base(ref.Path), ".torrent")
	}
	return title, base.ResolveReference(ref).String(), nil
}

// AddTopic 保存基础记录与扩展记录
func (t *Tracker) AddTopic(rawURL string, params plugin.TopicParams) (*model.Topic, error) {
	parsed, err := t.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, fmt.Errorf("无法识别的地址: %s", rawURL)
	}

	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = parsed.Title
	}

	topic := &Topic{
		Topic: model.Topic{
			DisplayName: displayName,
			URL:         rawURL,
			Type:        Name,
			Status:      model.TopicStatusOk,
			DownloadDir: params.DownloadDir,
		},
		TorrentURL: parsed.Extra["torrent_url"],
	}
	err = t.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&topic.Topic).Error; err != nil {
			return err
		}
		topic.TopicID = topic.Topic.ID
		return tx.Omit("Topic").Create(topic).Error
	})
	if err != nil {
		return nil, fmt.Errorf("保存订阅失败: %w", err)
	}
	return &topic.Topic, nil
}

// GetTopics ids 为空时返回状态为 ok/error 且未暂停的订阅；指定 ids 时只排除暂停的订阅
func (t *Tracker) GetTopics(ids []uint) ([]plugin.Topic, error) {
	query := t.db.Model(&model.Topic{}).Where("type = ? AND paused = ?", Name, false)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	} else {
		query = query.Where("status IN ?", model.ExecutableStatuses)
	}

	var topicIDs []uint
	if err := query.Order("id").Pluck("id", &topicIDs).Error; err != nil {
		return nil, err
	}
	if len(topicIDs) == 0 {
		return nil, nil
	}

	var rows []*Topic
	if err := t.db.Preload("Topic").Where("id IN ?", topicIDs).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	topics := make([]plugin.Topic, 0, len(rows))
	for _, row := range rows {
		topics = append(topics, row)
	}
	return topics, nil
}

// Execute 按 info-hash 检测更新
func (t *Tracker) Execute(topics []plugin.Topic, engine plugin.ExecuteEngine) error {
	plugin.ExecuteWithHashChange(t, topics, engine)
	return nil
}

// DownloadTorrent 从订阅地址开始下载；页面地址每次都重新查找种子链接
func (t *Tracker) DownloadTorrent(topic plugin.HashTopic) (*plugin.Download, error) {
	base := topic.Base()
	res, err := t.get(base.URL)
	if err != nil {
		return nil, err
	}
	if downloader.IsNotFound(res.StatusCode) {
		return &plugin.Download{Status: model.TopicStatusNotFound}, nil
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载 %s 失败，状态码: %d", base.URL, res.StatusCode)
	}

	if _, err := torrentfile.Parse(res.Content); err != nil {
		_, link, err := parsePage(base.URL, res.Content)
		if errors.Is(err, ErrNoTorrentLink) {
			return &plugin.Download{Status: model.TopicStatusUnknown}, nil
		}
		if err != nil {
			return nil, err
		}
		t.rememberTorrentURL(topic, link)

		res, err = t.get(link)
		if err != nil {
			return nil, err
		}
		if downloader.IsNotFound(res.StatusCode) {
			return &plugin.Download{Status: model.TopicStatusNotFound}, nil
		}
		if res.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("下载 %s 失败，状态码: %d", link, res.StatusCode)
		}
	}

	filename := res.Filename
	if filename == "" {
		filename = base.DisplayName + ".torrent"
	}
	return &plugin.Download{Content: res.Content, Filename: filename}, nil
}

func (t *Tracker) rememberTorrentURL(topic plugin.HashTopic, link string) {
	gt, ok := topic.(*Topic)
	if !ok || gt.TorrentURL == link {
		return
	}
	if err := t.db.Model(&Topic{}).Where("id = ?", gt.TopicID).Update("torrent_url", link).Error; err != nil {
		t.logger.Warnf("保存种子地址失败: %v", err)
		return
	}
	gt.TorrentURL = link
}

// SaveTopic 持久化执行结果，基础表与扩展表在同一事务中更新
func (t *Tracker) SaveTopic(topic plugin.HashTopic, update plugin.TopicUpdate) error {
	base := topic.Base()
	return t.db.Transaction(func(tx *gorm.DB) error {
		values := map[string]any{}
		if update.Status != "" {
			values["status"] = update.Status
		}
		if update.LastUpdate != nil {
			values["last_update"] = *update.LastUpdate
		}
		if len(values) > 0 {
			if err := tx.Model(&model.Topic{}).Where("id = ?", base.ID).Updates(values).Error; err != nil {
				return err
			}
		}
		if update.Hash != nil {
			if err := tx.Model(&Topic{}).Where("id = ?", base.ID).Update("hash", *update.Hash).Error; err != nil {
				return err
			}
			if gt, ok := topic.(*Topic); ok {
				gt.Hash = *update.Hash
			}
		}
		if update.LastUpdate != nil {
			base.LastUpdate = update.LastUpdate
		}
		return nil
	})
}

// get 请求地址，登录站点的请求附带当前会话
func (t *Tracker) get(rawURL string) (*downloader.DownloadResult, error) {
	return t.downloader.GetWithAuth(rawURL, t.authFor(rawURL))
}

func (t *Tracker) authFor(rawURL string) *downloader.Auth {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host != t.loginHost {
		return nil
	}
	return t.session
}

func (t *Tracker) setSession(session *downloader.Auth) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = session
}

func (t *Tracker) GetCredentials() (*model.TrackerCredentials, error) {
	return t.credentials.Get(Name)
}

// UpdateCredentials 保存新的用户名密码，旧会话作废
func (t *Tracker) UpdateCredentials(username, password string) error {
	if err := t.credentials.Update(Name, username, password); err != nil {
		return err
	}
	t.setSession(nil)
	return nil
}

// Verify 没有配置登录地址或凭据时按匿名访问处理；否则用保存的 Cookie 请求登录地址
func (t *Tracker) Verify() bool {
	creds, err := t.credentials.Get(Name)
	if err != nil {
		t.logger.Warnf("读取凭据失败: %v", err)
		return false
	}
	if t.loginURL == "" || !creds.HasLogin() {
		return true
	}
	if creds.Cookies == "" {
		return false
	}

	res, err := t.downloader.GetWithAuth(t.loginURL, &downloader.Auth{Cookies: creds.Cookies})
	if err != nil {
		t.logger.Warnf("验证会话失败: %v", err)
		return false
	}
	if res.StatusCode != http.StatusOK {
		return false
	}
	t.setSession(&downloader.Auth{Username: creds.Username, Password: creds.Password, Cookies: creds.Cookies})
	return true
}

// Login 用 Basic 认证请求登录地址，保存站点返回的 Cookie
func (t *Tracker) Login() plugin.LoginResult {
	creds, err := t.credentials.Get(Name)
	if err != nil {
		t.logger.Warnf("读取凭据失败: %v", err)
		return plugin.LoginUnknown
	}
	if t.loginURL == "" || !creds.HasLogin() {
		return plugin.LoginCredentialsNotSpecified
	}

	res, err := t.downloader.GetWithAuth(t.loginURL, &downloader.Auth{Username: creds.Username, Password: creds.Password})
	if err != nil {
		t.logger.Warnf("登录请求失败: %v", err)
		return plugin.LoginServiceUnavailable
	}
	if res.StatusCode != http.StatusOK {
		return plugin.LoginResultFromStatus(res.StatusCode)
	}

	if err := t.credentials.SaveCookies(Name, res.Cookies); err != nil {
		t.logger.Warnf("保存会话失败: %v", err)
		return plugin.LoginUnknown
	}
	t.setSession(&downloader.Auth{Username: creds.Username, Password: creds.Password, Cookies: res.Cookies})
	return plugin.LoginOk
}

// Version 表结构版本
func (t *Tracker) Version() int {
	return 1
}

func (t *Tracker) Models() []any {
	return []any{&Topic{}}
}

// Upgrade 版本 0 是独立的 generic_torrents 表，提升为继承 topics 的扩展表
func (t *Tracker) Upgrade(tx *gorm.DB, from int) error {
	if from >= 1 || !tx.Migrator().HasTable(legacyTable) {
		return nil
	}
	t.logger.Infof("迁移旧表 %s", legacyTable)
	if err := database.UpgradeToBaseTopic(tx, database.BaseTopicUpgrade{
		OldTable: legacyTable,
		NewModel: &Topic{},
		Type:     Name,
		Renames:  map[string]string{"name": "display_name"},
	}); err != nil {
		return err
	}
	return tx.Exec("UPDATE generic_topics SET torrent_url = (SELECT url FROM topics WHERE topics.id = generic_topics.id) WHERE torrent_url IS NULL OR torrent_url = ''").Error
}

// Close 释放网络连接
func (t *Tracker) Close() error {
	return t.downloader.Close()
}
