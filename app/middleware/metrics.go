package middleware

import (
	"strconv"

	"torrent-monitor/app/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics 按路由模板统计请求数，未匹配的路由不计入
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			return
		}
		metrics.HttpRequestsTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
