package downloader

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"resty.dev/v3"
)

// DownloadConfig 下载配置
type DownloadConfig struct {
	UserAgent string        // User-Agent
	Timeout   time.Duration // 超时时间
	MaxSize   int64         // 响应体上限 (字节)
}

// DefaultDownloadConfig 默认下载配置
func DefaultDownloadConfig() *DownloadConfig {
	return &DownloadConfig{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Timeout:   10 * time.Second,
		MaxSize:   10 * 1024 * 1024, // 10MB
	}
}

// DownloadResult 下载结果
type DownloadResult struct {
	StatusCode  int
	Content     []byte
	ContentType string
	Filename    string // 来自 Content-Disposition，可能为空
	Cookies     string // 响应设置的 Cookie，已拼成请求头格式
}

// Auth 请求附带的认证信息
type Auth struct {
	Username string
	Password string
	Cookies  string // 原样作为 Cookie 请求头
}

// Downloader 抓取种子文件与页面
type Downloader struct {
	client *resty.Client
	config *DownloadConfig
}

// New 创建下载器
func New(config *DownloadConfig) *Downloader {
	if config == nil {
		config = DefaultDownloadConfig()
	}
	client := resty.New()
	client.SetTimeout(config.Timeout)
	client.SetHeader("User-Agent", config.UserAgent)
	client.SetHeader("Accept", "*/*")
	if config.MaxSize > 0 {
		client.SetResponseBodyLimit(config.MaxSize)
	}
	return &Downloader{client: client, config: config}
}

// SetTimeout 调整请求超时
func (d *Downloader) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	d.config.Timeout = timeout
	d.client.SetTimeout(timeout)
}

// Get 请求地址并返回完整响应，非 2xx 状态码不视为错误，由调用方判断
func (d *Downloader) Get(url string) (*DownloadResult, error) {
	return d.GetWithAuth(url, nil)
}

// GetWithAuth 同 Get，auth 不为空时附带 Basic 认证和 Cookie
func (d *Downloader) GetWithAuth(url string, auth *Auth) (*DownloadResult, error) {
	req := d.client.R()
	if auth != nil {
		if auth.Username != "" {
			req.SetBasicAuth(auth.Username, auth.Password)
		}
		if auth.Cookies != "" {
			req.SetHeader("Cookie", auth.Cookies)
		}
	}

	// 超过 MaxSize 的响应体由 resty 在读取时中断
	resp, err := req.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}

	return &DownloadResult{
		StatusCode:  resp.StatusCode(),
		Content:     resp.Bytes(),
		ContentType: resp.Header().Get("Content-Type"),
		Filename:    FilenameFromDisposition(resp.Header().Get("Content-Disposition")),
		Cookies:     CookieHeader(resp.Cookies()),
	}, nil
}

// CookieHeader 把 Cookie 拼成请求头格式
func CookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Close 释放连接
func (d *Downloader) Close() error {
	return d.client.Close()
}

// FilenameFromDisposition 从 Content-Disposition 中取文件名
// 很多站点直接发送 cp1251 编码的字节，不是合法 UTF-8 时按 cp1251 解码
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err == nil {
		if name := params["filename"]; name != "" {
			return decodeFilename(name)
		}
	}

	// ParseMediaType 对非 ASCII 字节会失败，退回手动解析
	idx := strings.Index(strings.ToLower(header), "filename=")
	if idx < 0 {
		return ""
	}
	name := header[idx+len("filename="):]
	if end := strings.IndexByte(name, ';'); end >= 0 {
		name = name[:end]
	}
	return decodeFilename(strings.Trim(strings.TrimSpace(name), `"`))
}

func decodeFilename(name string) string {
	if utf8.ValidString(name) {
		return name
	}
	decoded, err := charmap.Windows1251.NewDecoder().String(name)
	if err != nil {
		return name
	}
	return decoded
}

// IsNotFound 判断响应是否表示资源已不存在
func IsNotFound(statusCode int) bool {
	return statusCode == http.StatusNotFound || statusCode == http.StatusGone
}
