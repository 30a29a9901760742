package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/location"
	"github.com/langchou/fleettrack/internal/service"
	"github.com/langchou/fleettrack/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	tracking *service.TrackingService
	trips    *service.TripService
	tripLogs *service.TripLogService
	provider *location.PushProvider
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	tracking *service.TrackingService,
	trips *service.TripService,
	tripLogs *service.TripLogService,
	provider *location.PushProvider,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:   logger,
		tracking: tracking,
		trips:    trips,
		tripLogs: tripLogs,
		provider: provider,
		wsHub:    wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 追踪控制
		api.GET("/tracking/status", h.GetTrackingStatus)
		api.POST("/tracking/stop", h.StopTracking)
		api.POST("/trips/:id/start", h.StartTrip)
		api.POST("/trips/:id/complete", h.CompleteTrip)

		// 设备定位上报（喂给 PushProvider）
		api.POST("/location", h.ReportLocation)

		// 行程
		api.GET("/trips", h.ListTrips)
		api.GET("/trips/active", h.GetActiveTrip)
		api.GET("/trip-tickets/:id", h.GetTripTicket)

		// 车辆与油料
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/fuel-records", h.ListFuelRecords)

		// 行车日志草稿
		api.GET("/trip-tickets/:id/log", h.OpenTripLogDraft)
		api.PATCH("/trip-tickets/:id/log", h.UpdateTripLogDraft)
		api.POST("/trip-tickets/:id/log/submit", h.SubmitTripLog)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"tracking":   h.tracking.Status().Status,
		"ws_clients": h.wsHub.ClientCount(),
	})
}
