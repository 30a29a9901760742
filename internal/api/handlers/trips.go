package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/api/backend"
)

// ListTrips 获取行程历史（已去重）
func (h *Handler) ListTrips(c *gin.Context) {
	trips, err := h.trips.History(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list trips", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to list trips"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": trips})
}

// GetActiveTrip 获取进行中的行车票
func (h *Handler) GetActiveTrip(c *gin.Context) {
	ticket, err := h.trips.Active(c.Request.Context())
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active trip"})
			return
		}
		h.logger.Error("Failed to get active trip", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get active trip"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

// GetTripTicket 获取行车票详情
func (h *Handler) GetTripTicket(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ticket ID"})
		return
	}

	ticket, err := h.trips.TripTicket(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Trip ticket not found"})
			return
		}
		h.logger.Error("Failed to get trip ticket", zap.Error(err), zap.Int64("trip_ticket_id", id))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get trip ticket"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

// ListVehicles 获取司机名下车辆
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles, err := h.trips.Vehicles(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list vehicles", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to list vehicles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// ListFuelRecords 获取油料台账
func (h *Handler) ListFuelRecords(c *gin.Context) {
	records, err := h.trips.FuelRecords(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list fuel records", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to list fuel records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}
