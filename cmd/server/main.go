package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/chargepilot/internal/api/handlers"
	"github.com/langchou/chargepilot/internal/api/renault"
	"github.com/langchou/chargepilot/internal/api/telegram"
	"github.com/langchou/chargepilot/internal/cache"
	"github.com/langchou/chargepilot/internal/clock"
	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/metrics"
	"github.com/langchou/chargepilot/internal/models"
	"github.com/langchou/chargepilot/internal/mqtt"
	"github.com/langchou/chargepilot/internal/notify"
	"github.com/langchou/chargepilot/internal/outlet"
	"github.com/langchou/chargepilot/internal/repository"
	"github.com/langchou/chargepilot/internal/service"
	"github.com/langchou/chargepilot/pkg/ws"
)

// sessionStore 会话记录：写入给调度器，分页查询给 API
type sessionStore interface {
	service.SessionRecorder
	handlers.SessionLister
}

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting chargepilot", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 会话记录存储
	var store sessionStore
	if cfg.DatabaseURL != "" {
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database migrated successfully")
		store = repository.NewSessionRepository(db)
	} else {
		logger.Info("Recording sessions to file", zap.String("path", cfg.RecordFile))
		store = repository.NewFileRecorder(cfg.RecordFile)
	}

	// MQTT（插座控制或进度事件任一需要时连接）
	var publisher mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT)
		if err != nil {
			logger.Fatal("Failed to connect MQTT broker", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		}
		defer p.Close()
		publisher = p
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTT.Broker))
	}

	// 智能插座
	var sw service.PowerSwitch
	switch cfg.Switch.Kind {
	case "mqtt":
		if publisher == nil {
			logger.Fatal("MQTT switch requires MQTT_BROKER")
		}
		sw = mqtt.NewSwitch(publisher, cfg.Switch)
	default:
		sw = outlet.NewHTTPSwitch(cfg.Switch)
	}
	guard := outlet.NewGuard(sw, logger)

	// 通知渠道：Telegram 为主渠道，Pushover 作为镜像
	bot, err := telegram.NewClient(cfg.Telegram, logger)
	if err != nil {
		logger.Fatal("Failed to create telegram client", zap.Error(err))
	}
	var notifier service.Notifier = bot
	if cfg.Pushover.Token != "" && cfg.Pushover.User != "" {
		notifier = notify.NewFanout(logger, notifier, notify.NewPushover(cfg.Pushover.Token, cfg.Pushover.User))
		logger.Info("Pushover mirror enabled")
	}

	// 拒绝冷却：配置 Redis 时重启后仍然有效
	var cooldown service.CooldownStore
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			logger.Fatal("Failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		cooldown = cache.NewCooldownStore(rdb)
	}

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		wsHub.Run(ctx)
	}()

	// 进度观察者
	status := service.NewStatusTracker()
	observers := []service.ProgressObserver{status, wsHub}
	if cfg.InfluxDB.Address != "" {
		sink, conn, err := metrics.NewInfluxSink(cfg.InfluxDB, logger)
		if err != nil {
			logger.Fatal("Failed to create influxdb client", zap.Error(err))
		}
		defer conn.Close()
		observers = append(observers, sink)
	}
	if publisher != nil && cfg.MQTT.EventTopic != "" {
		observers = append(observers, mqtt.NewEventPublisher(publisher, cfg.MQTT.EventTopic, logger))
	}
	if cfg.Debug {
		observers = append(observers, service.ObserverFunc(func(ctx context.Context, ev models.ProgressEvent) {
			logger.Debug("Progress event",
				zap.String("type", string(ev.Type)),
				zap.String("state", ev.State),
				zap.Int("current", ev.CurrentPercentage),
				zap.Duration("next_poll", ev.NextPoll))
		}))
	}

	// 车辆与调度
	clk := clock.NewReal()
	vehicle := renault.NewClient(cfg.Renault, logger)
	scheduler := service.NewScheduler(cfg, logger, clk, vehicle, guard, notifier, store, observers...)
	monitor := service.NewMonitor(cfg, logger, clk, vehicle, guard, notifier, scheduler, cooldown)

	monitorDone := make(chan error, 1)
	go func() {
		monitorDone <- monitor.Run(ctx)
	}()

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, store, monitor, status, guard, wsHub)
	wsHub.SetInitDataProvider(func() interface{} {
		return handler.Snapshot()
	})

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router, cfg.APIJWTSecret)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号或监控异常退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.Info("Shutting down...")
		cancel()
		// 等待进行中的会话走完退出流程
		if err := <-monitorDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Plug monitor stopped with error", zap.Error(err))
		}
	case err := <-monitorDone:
		if errors.Is(err, models.ErrSetupFailure) {
			logger.Error("Vehicle account unavailable, shutting down", zap.Error(err))
		} else {
			logger.Error("Plug monitor stopped unexpectedly", zap.Error(err))
		}
		exitCode = 1
		cancel()
	}

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	<-hubDone

	logger.Info("Server exited")
	if exitCode != 0 {
		logger.Sync()
		os.Exit(exitCode)
	}
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
