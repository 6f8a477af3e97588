package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"torrent-monitor/app/auth"
	"torrent-monitor/app/config"
	"torrent-monitor/app/engine"
	"torrent-monitor/app/handler"
	"torrent-monitor/app/logger"
	"torrent-monitor/app/server"
	"torrent-monitor/app/service"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动服务器",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		// 创建日志器
		log := logger.New(cfg.Log)
		defer log.Close()

		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		watchLogLevel(log)

		app, err := newApplication(cfg, log)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer app.Close()

		var opts []engine.RunnerOption
		if cfg.Engine.DisableAutoExecute {
			opts = append(opts, engine.WithoutAutoExecute())
		}
		runner, err := engine.NewRunner(app.engine, engine.NewDBSettingsStore(app.db), cfg.Interval(), log, opts...)
		if err != nil {
			log.Fatalf("创建执行调度器失败: %v", err)
		}

		retention := service.NewRetentionService(app.logs, app.settings, cfg.Engine.RetentionCron, log)
		topics := service.NewTopicService(app.db, app.registry, log)
		jwtService := auth.NewJWTService(cfg.JWT)
		poll := handler.LongPoll{
			Timeout:  time.Duration(cfg.Engine.LongPollTimeout) * time.Second,
			Interval: time.Duration(cfg.Engine.LongPollIntervalMs) * time.Millisecond,
		}

		srv := server.New(cfg, log, server.Dependencies{
			Handlers: server.Handlers{
				Auth:     handler.NewAuthHandler(app.db, jwtService),
				Execute:  handler.NewExecuteHandler(runner, app.logs, topics, poll, log),
				Topics:   handler.NewTopicHandler(topics),
				Trackers: handler.NewTrackerHandler(service.NewTrackerService(app.registry, log)),
				Clients:  handler.NewClientHandler(app.registry, app.clients),
				Settings: handler.NewSettingsHandler(app.settings, retention),
			},
			Runner:    runner,
			Retention: retention,
			JWT:       jwtService,
		})

		// 在协程中启动服务器
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("启动服务器失败: %v", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("收到关闭信号，正在关闭服务器...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("服务器关闭失败: %v", err)
		}
		log.Info("服务器已退出")
	},
}

// watchLogLevel 配置文件修改后重新应用日志级别
func watchLogLevel(log *logger.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := viper.GetString("log.level")
		log.SetLevel(level)
		log.Infof("配置文件 %s 已修改，日志级别: %s", e.Name, level)
	})
	viper.WatchConfig()
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
