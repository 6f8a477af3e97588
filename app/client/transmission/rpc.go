package transmission

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"resty.dev/v3"
)

const sessionHeader = "X-Transmission-Session-Id"

// rpcRequest Transmission RPC 请求体
type rpcRequest struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

// rpcResponse Transmission RPC 响应体，result 为 "success" 表示成功
type rpcResponse[T any] struct {
	Result    string `json:"result"`
	Arguments T      `json:"arguments"`
}

type torrentFields struct {
	HashString string `json:"hashString"`
	Name       string `json:"name"`
	AddedDate  int64  `json:"addedDate"`
}

type torrentGetResult struct {
	Torrents []torrentFields `json:"torrents"`
}

type torrentAddResult struct {
	Added     *torrentFields `json:"torrent-added"`
	Duplicate *torrentFields `json:"torrent-duplicate"`
}

// rpcClient 处理 session id 握手的 RPC 连接
type rpcClient struct {
	client    *resty.Client
	url       string
	username  string
	password  string
	mu        sync.Mutex
	sessionID string
}

func newRPCClient(url, username, password string, timeout time.Duration) *rpcClient {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	return &rpcClient{
		client:   client,
		url:      url,
		username: username,
		password: password,
	}
}

// call 发送请求；收到 409 时保存新的 session id 并重试一次
func call[T any](c *rpcClient, method string, args any) (T, error) {
	var zero T
	for attempt := 0; attempt < 2; attempt++ {
		var result rpcResponse[T]

		c.mu.Lock()
		sessionID := c.sessionID
		c.mu.Unlock()

		req := c.client.R().
			SetBody(rpcRequest{Method: method, Arguments: args}).
			SetResult(&result)
		if sessionID != "" {
			req.SetHeader(sessionHeader, sessionID)
		}
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := req.Post(c.url)
		if err != nil {
			return zero, fmt.Errorf("请求 Transmission 失败: %w", err)
		}

		switch resp.StatusCode() {
		case http.StatusConflict:
			c.mu.Lock()
			c.sessionID = resp.Header().Get(sessionHeader)
			c.mu.Unlock()
			continue
		case http.StatusOK:
		default:
			return zero, fmt.Errorf("Transmission 返回状态码 %d: %s", resp.StatusCode(), resp.String())
		}

		if result.Result != "success" {
			return zero, fmt.Errorf("Transmission %s 失败: %s", method, result.Result)
		}
		return result.Arguments, nil
	}
	return zero, fmt.Errorf("Transmission 会话握手失败")
}

func (c *rpcClient) close() error {
	return c.client.Close()
}
