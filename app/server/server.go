package server

import (
	"context"
	"net/http"
	"time"

	"torrent-monitor/app/auth"
	"torrent-monitor/app/config"
	"torrent-monitor/app/handler"
	"torrent-monitor/app/logger"
	"torrent-monitor/app/middleware"
	"torrent-monitor/app/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies 服务器使用的组件，由 cmd 在启动时组装
type Dependencies struct {
	Handlers  Handlers
	Runner    Lifecycle
	Retention *service.RetentionService
	JWT       *auth.JWTService
}

// Handlers 各路由组的处理器
type Handlers struct {
	Auth     *handler.AuthHandler
	Execute  *handler.ExecuteHandler
	Topics   *handler.TopicHandler
	Trackers *handler.TrackerHandler
	Clients  *handler.ClientHandler
	Settings *handler.SettingsHandler
}

// Lifecycle 随服务器启动和停止的后台任务
type Lifecycle interface {
	Start()
	Stop()
}

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server
	deps   Dependencies
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Metrics())

	// 长轮询最多占用 long_poll_timeout，写超时留出余量
	writeTimeout := time.Duration(cfg.Engine.LongPollTimeout)*time.Second + 30*time.Second

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		Config: cfg,
		Logger: log,
		deps:   deps,
	}

	s.setupRoutes()
	return s
}

// Handler 返回路由，测试直接使用
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Start 启动后台任务并开始监听，阻塞直到服务器关闭
func (s *Server) Start() error {
	if s.deps.Runner != nil {
		s.deps.Runner.Start()
	}
	if s.deps.Retention != nil {
		if err := s.deps.Retention.Start(); err != nil {
			return err
		}
	}

	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown 停止接收请求，并等待进行中的执行结束
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if s.deps.Retention != nil {
		s.deps.Retention.Stop()
	}
	if s.deps.Runner != nil {
		s.deps.Runner.Stop()
	}
	return err
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	h := s.deps.Handlers

	s.gin.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.RefreshToken)
	}

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(s.deps.JWT))
	{
		protected.GET("/me", h.Auth.Me)

		execute := protected.Group("/execute")
		{
			execute.POST("", h.Execute.Execute)
			execute.GET("", h.Execute.GetSettings)
			execute.PUT("", h.Execute.UpdateSettings)
			execute.GET("/current", h.Execute.Current)
			execute.GET("/logs", h.Execute.Logs)
			execute.GET("/logs/:execute_id/details", h.Execute.Details)
		}

		topics := protected.Group("/topics")
		{
			topics.GET("", h.Topics.List)
			topics.GET("/parse", h.Topics.Parse)
			topics.POST("", h.Topics.Add)
			topics.DELETE("/:id", h.Topics.Delete)
			topics.POST("/:id/pause", h.Topics.Pause)
			topics.POST("/:id/unpause", h.Topics.Unpause)
			topics.POST("/:id/reset-status", h.Topics.ResetStatus)
		}

		trackers := protected.Group("/trackers")
		{
			trackers.GET("", h.Trackers.List)
			trackers.GET("/:tracker", h.Trackers.Get)
			trackers.PUT("/:tracker", h.Trackers.Update)
			trackers.POST("/:tracker/check", h.Trackers.Check)
		}

		clients := protected.Group("/clients")
		{
			clients.GET("", h.Clients.List)
			clients.GET("/:client", h.Clients.Get)
			clients.PUT("/:client", h.Clients.Update)
			clients.POST("/:client/check", h.Clients.Check)
		}
		protected.GET("/default-client", h.Clients.GetDefault)
		protected.PUT("/default-client", h.Clients.SetDefault)

		settings := protected.Group("/settings")
		{
			settings.GET("/execute-log-retention", h.Settings.GetRetention)
			settings.PUT("/execute-log-retention", h.Settings.UpdateRetention)
		}
	}
}
