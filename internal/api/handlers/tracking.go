package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/location"
	"github.com/langchou/fleettrack/internal/models"
	"github.com/langchou/fleettrack/internal/service"
)

// GetTrackingStatus 获取当前追踪会话快照
func (h *Handler) GetTrackingStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.tracking.Status()})
}

// StartTrip 开始追踪行程
// POST /api/trips/:id/start
func (h *Handler) StartTrip(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID"})
		return
	}

	if err := h.tracking.RequestStart(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to start trip", zap.Error(err), zap.Int64("trip_id", id))
		switch {
		case errors.Is(err, service.ErrTripInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, location.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "Location permission denied"})
		case errors.Is(err, location.ErrProviderUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Unable to acquire a location fix"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": h.tracking.Status()})
}

// CompleteTrip 完成行程
// POST /api/trips/:id/complete
// 行车日志未提交时返回 409，追踪保持运行
func (h *Handler) CompleteTrip(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID"})
		return
	}

	if err := h.tracking.CompleteTrip(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrTripLogRequired) {
			c.JSON(http.StatusConflict, gin.H{"error": "Submit the trip log before completing this trip"})
			return
		}
		h.logger.Error("Failed to complete trip", zap.Error(err), zap.Int64("trip_id", id))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Trip completed", "trip_id": id})
}

// StopTracking 停止追踪（不向后端标记完成）
func (h *Handler) StopTracking(c *gin.Context) {
	if err := h.tracking.RequestStop(); err != nil {
		h.logger.Error("Failed to stop tracking", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Tracking stopped"})
}

// ReportLocation 设备定位上报
// POST /api/location
// 采样点进入 PushProvider，再按采样策略流入追踪会话
func (h *Handler) ReportLocation(c *gin.Context) {
	var sample models.LocationSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location sample"})
		return
	}

	h.provider.Report(sample)
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}
