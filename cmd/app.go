package cmd

import (
	"fmt"

	"torrent-monitor/app/client/transmission"
	"torrent-monitor/app/config"
	"torrent-monitor/app/database"
	"torrent-monitor/app/engine"
	"torrent-monitor/app/logger"
	"torrent-monitor/app/plugin"
	"torrent-monitor/app/service"
	"torrent-monitor/app/tracker/generic"

	"gorm.io/gorm"
)

// application 共享给各命令的核心组件
type application struct {
	db           *gorm.DB
	registry     *plugin.Registry
	generic      *generic.Tracker
	transmission *transmission.Client
	settings     *service.SettingsService
	clients      *plugin.ClientsManager
	logs         *engine.ExecuteLogManager
	engine       *engine.Engine
}

// newApplication 打开数据库，注册插件并升级插件表
func newApplication(cfg *config.Config, log *logger.Logger) (*application, error) {
	db, err := database.Init(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("数据库初始化失败: %w", err)
	}

	app := &application{
		db:           db,
		registry:     plugin.NewRegistry(),
		generic:      generic.New(db, log, generic.WithLoginURL(cfg.Trackers.Generic.LoginURL)),
		transmission: transmission.New(db, log, cfg.RequestsTimeout()),
	}

	if err := app.registry.RegisterTracker(app.generic); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.registry.RegisterClient(app.transmission); err != nil {
		app.Close()
		return nil, err
	}
	if err := database.UpgradePlugins(db, app.registry, log); err != nil {
		app.Close()
		return nil, fmt.Errorf("升级插件表失败: %w", err)
	}

	app.settings = service.NewSettingsService(db, cfg.Engine.RetentionDays)
	app.clients = plugin.NewClientsManager(app.registry, app.settings)
	app.logs = engine.NewExecuteLogManager(db)
	app.engine = engine.New(
		app.registry,
		app.clients,
		engine.NewDBLogger(app.logs, log),
		plugin.TrackerSettings{RequestsTimeout: cfg.RequestsTimeout()},
		log,
	)
	return app, nil
}

// Close 关闭插件连接与数据库
func (a *application) Close() {
	if a.generic != nil {
		_ = a.generic.Close()
	}
	if a.transmission != nil {
		_ = a.transmission.Close()
	}
	_ = database.Close(a.db)
}
