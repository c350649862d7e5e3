package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/outlet"
	"github.com/langchou/chargepilot/internal/service"
)

// StatusResponse /api/status 与 WebSocket 初始消息的内容
type StatusResponse struct {
	Session service.Status `json:"session"`
	Outlet  *outlet.State  `json:"outlet,omitempty"`
}

// Snapshot 当前状态
func (h *Handler) Snapshot() StatusResponse {
	resp := StatusResponse{Session: h.status.Snapshot()}
	if h.outlet != nil {
		st := h.outlet.State()
		resp.Outlet = &st
	}
	return resp
}

// GetStatus 获取当前会话状态
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Snapshot())
}

// ListSessions 获取会话记录列表
func (h *Handler) ListSessions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage

	records, err := h.sessions.List(c.Request.Context(), perPage, offset)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": records,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
		},
	})
}

// StopSession 停止当前会话，会话会走完正常的结束流程
func (h *Handler) StopSession(c *gin.Context) {
	if !h.control.StopSession() {
		c.JSON(http.StatusConflict, gin.H{"error": "No active session"})
		return
	}
	h.logger.Info("Session stop requested via API", zap.String("subject", c.GetString(subjectKey)))
	c.JSON(http.StatusAccepted, gin.H{"stopped": true})
}
