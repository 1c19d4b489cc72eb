package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/api/middleware"
)

// RegisterRoutes 注册只读查询路由
func RegisterRoutes(r *gin.Engine, h *Handler, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}

	// API路由组(需要认证)
	api := r.Group("/api")
	api.Use(middleware.CORS())
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 设备查询
	api.GET("/devices", h.ListDevices)
	api.GET("/devices/:deviceId/latest", h.GetLatest)
	api.GET("/devices/:deviceId/history", h.GetHistory)

	logger.Info("api routes registered", zap.Int("endpoints", 3))
}
