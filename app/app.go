// Package app 负责组装并管理各组件的生命周期
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tpadmin/app/config"
	"tpadmin/internal/api"
	"tpadmin/internal/history"
	"tpadmin/internal/loginlog"
	"tpadmin/internal/poller"
	"tpadmin/internal/server"
	"tpadmin/pkg/common"
	"tpadmin/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// App 应用实例
type App struct {
	cfg    *config.BaseConfig
	log    *common.Logger
	logger *zap.Logger

	db        *gorm.DB
	history   *history.Storage
	loginLogs *loginlog.Store
	admin     *server.AdminServer
	poller    *poller.Poller
	fiber     *fiber.App
}

// New 创建应用实例
func New() *App {
	return &App{}
}

// LoadConfig 加载配置并初始化日志器
func (a *App) LoadConfig(path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := common.NewLogger(*cfg.Logger)
	if err != nil {
		return fmt.Errorf("初始化日志器失败: %w", err)
	}
	a.log = logger
	a.logger = logger.GetZapLogger("tpadmin")
	return nil
}

// Start 按依赖顺序启动全部组件
func (a *App) Start() error {
	ctx := context.Background()
	mon := a.cfg.Monitor

	// 1. 登录日志存储（可选，未配置数据库时跳过）
	if a.cfg.Database != nil && a.cfg.Database.DSN != "" {
		db, err := gorm.Open(mysql.Open(a.cfg.Database.DSN), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("连接数据库失败: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("获取数据库连接失败: %w", err)
		}
		sqlDB.SetMaxOpenConns(a.cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(a.cfg.Database.MaxIdleConns)

		a.db = db
		a.loginLogs = loginlog.NewStore(db, a.logger.Named("loginlog"))
		if err := a.loginLogs.AutoMigrate(); err != nil {
			return err
		}
	} else {
		a.logger.Warn("未配置数据库，登录日志查询不可用")
	}

	// 2. 历史存储
	hist, err := history.New(history.Config{
		DataDir:       a.cfg.System.DataDir,
		RetentionDays: mon.RetentionDays,
		Logger:        a.logger.Named("history"),
	})
	if err != nil {
		return fmt.Errorf("初始化历史存储失败: %w", err)
	}
	if err := hist.Start(); err != nil {
		return fmt.Errorf("启动历史存储失败: %w", err)
	}
	a.history = hist

	// 3. 采集服务
	a.admin = server.New(server.Config{
		HeartbeatTimeout: time.Duration(mon.HeartbeatTimeoutSeconds) * time.Second,
		SweepInterval:    time.Duration(mon.SweepIntervalSeconds) * time.Second,
		WindowSeconds:    mon.WindowSeconds,
		Logger:           a.logger.Named("server"),
	}, hist, a.loginLogs)
	if err := a.admin.Start(ctx); err != nil {
		a.history.Stop()
		return fmt.Errorf("启动采集服务失败: %w", err)
	}

	// 4. 拉取式采集（可选）
	if mon.PollEnabled {
		a.poller = poller.New(poller.Config{
			Interval:  time.Duration(mon.PollIntervalSeconds) * time.Second,
			Timeout:   time.Duration(mon.PollTimeoutSeconds) * time.Second,
			StatsPath: mon.PollStatsPath,
			Logger:    a.logger.Named("poller"),
		}, a.admin)
		if err := a.poller.Start(); err != nil {
			a.admin.Stop(ctx)
			a.history.Stop()
			return fmt.Errorf("启动轮询采集失败: %w", err)
		}
	}

	// 5. HTTP服务器
	a.fiber = fiber.New(fiber.Config{
		AppName:      "ThreadPool Admin Server",
		ErrorHandler: errorHandler,
	})
	a.fiber.Use(recover.New())
	a.fiber.Use(fiberlogger.New())
	a.fiber.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	monitorAPI := api.NewAPI(a.admin, a.logger.Named("api"))
	monitorAPI.RegisterRoutes(a.fiber)

	bindIP := utils.DefaultIfEmpty(a.cfg.Network.BindIP, "0.0.0.0")
	listenAddr := bindIP + ":" + strconv.Itoa(a.cfg.Network.HttpPort)
	go func() {
		if err := a.fiber.Listen(listenAddr); err != nil {
			a.logger.Fatal("HTTP服务器退出", zap.Error(err))
		}
	}()

	a.logger.Info("应用已启动",
		zap.String("listenAddr", listenAddr),
		zap.String("localIp", utils.GetLocalIP()))
	return nil
}

// Stop 按启动的相反顺序停止组件
func (a *App) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.fiber != nil {
		if err := a.fiber.Shutdown(); err != nil {
			a.logger.Error("关闭HTTP服务器失败", zap.Error(err))
		}
	}
	if a.poller != nil {
		a.poller.Stop()
	}
	if a.admin != nil {
		a.admin.Stop(ctx)
	}
	if a.history != nil {
		a.history.Stop()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	a.logger.Info("应用已停止")
	if a.log != nil {
		_ = a.log.Sync()
	}
	return nil
}

// errorHandler 统一兜底错误处理
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": true,
		"msg":   err.Error(),
	})
}
