package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册路由，jwtSecret 为空时 /api 不做认证
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	// API 路由
	api := r.Group("/api")
	if jwtSecret != "" {
		api.Use(JWTAuth(jwtSecret))
	}
	{
		api.GET("/status", h.GetStatus)
		api.GET("/sessions", h.ListSessions)
		api.POST("/session/stop", h.StopSession)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}
