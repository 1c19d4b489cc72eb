package app

import (
	"net/http"

	cfgpkg "github.com/driller442/BatteryHub/internal/config"
	"github.com/driller442/BatteryHub/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器
func NewHTTPServer(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler) *httpserver.Server {
	return httpserver.New(cfg, metricsPath, metricsHandler)
}
