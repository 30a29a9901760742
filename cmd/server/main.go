package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/fleettrack/internal/api/backend"
	"github.com/langchou/fleettrack/internal/api/geocoder"
	"github.com/langchou/fleettrack/internal/api/handlers"
	"github.com/langchou/fleettrack/internal/config"
	"github.com/langchou/fleettrack/internal/location"
	"github.com/langchou/fleettrack/internal/service"
	"github.com/langchou/fleettrack/internal/store"
	"github.com/langchou/fleettrack/pkg/ws"
)

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

	logger.Info("Starting Fleettrack", zap.String("port", cfg.ServerPort))

	// 打开本地存储
	st, err := store.Open(cfg.StorePath, logger)
	if err != nil {
		logger.Fatal("Failed to open local store", zap.Error(err))
	}
	defer st.Close()

	// 后端 API 客户端
	api := backend.NewClient(cfg.BackendBaseURL, cfg.BackendToken)

	// 逆地理编码客户端
	geo := geocoder.NewClient(cfg.AmapAPIKey, logger)

	// 定位提供方与订阅管理
	provider := location.NewPushProvider(
		cfg.ForegroundLocationAllowed,
		cfg.BackgroundLocationAllowed,
		cfg.FixStaleAfter,
		logger,
	)
	stream := location.NewStream(provider, logger)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 创建服务
	trackingService := service.NewTrackingService(cfg, logger, api, geo, st, provider, stream, wsHub)
	tripService := service.NewTripService(logger, api)
	tripLogService := service.NewTripLogService(cfg, logger, api, st)

	// 新 WebSocket 连接拿到当前会话快照
	wsHub.SetSnapshotProvider(func() interface{} {
		return trackingService.Status()
	})

	// 启动时对齐内存状态与持久化标记
	trackingService.ReconcileOnResume(context.Background())

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		trackingService,
		tripService,
		tripLogService,
		provider,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

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

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止追踪 goroutine，保留进行中标记供下次启动恢复
	trackingService.Shutdown()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
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
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
