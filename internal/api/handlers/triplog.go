package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/api/backend"
	"github.com/langchou/fleettrack/internal/service"
)

// OpenTripLogDraft 打开行车票对应的行车日志草稿
// GET /api/trip-tickets/:id/log
func (h *Handler) OpenTripLogDraft(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ticket ID"})
		return
	}

	draft, err := h.tripLogs.OpenDraft(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Trip ticket not found"})
			return
		}
		h.logger.Error("Failed to open trip log draft", zap.Error(err), zap.Int64("trip_ticket_id", id))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to open trip log draft"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": draft})
}

// UpdateTripLogDraft 增量编辑草稿
// PATCH /api/trip-tickets/:id/log
func (h *Handler) UpdateTripLogDraft(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ticket ID"})
		return
	}

	var patch service.DraftPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid draft patch"})
		return
	}

	draft, err := h.tripLogs.UpdateDraft(id, patch)
	if err != nil {
		h.logger.Error("Failed to update trip log draft", zap.Error(err), zap.Int64("trip_ticket_id", id))
		c.JSON(http.StatusNotFound, gin.H{"error": "No open draft for this trip ticket"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": draft})
}

// SubmitTripLog 提交行车日志
// POST /api/trip-tickets/:id/log/submit?complete=true
// complete=true 时同时上报油耗并清除草稿
func (h *Handler) SubmitTripLog(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ticket ID"})
		return
	}

	complete := c.DefaultQuery("complete", "false") == "true"

	log, err := h.tripLogs.Submit(c.Request.Context(), id, complete)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "Missing required fields",
				"missing": verr.Missing,
			})
			return
		}
		h.logger.Error("Failed to submit trip log", zap.Error(err), zap.Int64("trip_ticket_id", id))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": log})
}
