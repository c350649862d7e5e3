package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/models"
	"github.com/langchou/chargepilot/internal/outlet"
	"github.com/langchou/chargepilot/internal/service"
	"github.com/langchou/chargepilot/pkg/ws"
)

// SessionLister 会话记录分页查询
type SessionLister interface {
	List(ctx context.Context, limit, offset int) ([]*models.SessionRecord, error)
}

// SessionController 控制当前会话
type SessionController interface {
	StopSession() bool
	SessionActive() bool
}

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	sessions SessionLister
	control  SessionController
	status   *service.StatusTracker
	outlet   *outlet.Guard
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器，outlet 可以为 nil
func NewHandler(
	logger *zap.Logger,
	sessions SessionLister,
	control SessionController,
	status *service.StatusTracker,
	guard *outlet.Guard,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:   logger,
		sessions: sessions,
		control:  control,
		status:   status,
		outlet:   guard,
		wsHub:    wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 仪表盘可能来自其他端口
			},
		},
	}
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
		"status":         "ok",
		"session_active": h.control.SessionActive(),
		"ws_clients":     h.wsHub.ClientCount(),
	})
}
