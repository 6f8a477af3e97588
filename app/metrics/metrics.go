package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal 记录 HTTP 请求的总数
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// ExecutionsTotal 引擎执行次数，按结果 (finished/failed) 分类
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executions_total",
			Help: "Total number of engine executions.",
		},
		[]string{"status"},
	)

	// TrackerFailuresTotal 单个 tracker 插件执行失败次数
	TrackerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_failures_total",
			Help: "Total number of tracker plugin failures during executions.",
		},
		[]string{"tracker"},
	)

	// TorrentsAddedTotal 交给下载客户端的种子数
	TorrentsAddedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "torrents_added_total",
			Help: "Total number of torrents handed to the torrent client.",
		},
		[]string{"tracker"},
	)

	// ExecuteDuration 一次执行的耗时
	ExecuteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "execute_duration_seconds",
			Help:    "Duration of engine executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
)
