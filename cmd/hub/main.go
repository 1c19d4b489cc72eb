package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/app/bootstrap"
	cfgpkg "github.com/driller442/BatteryHub/internal/config"
	"github.com/driller442/BatteryHub/internal/logging"
)

func main() {
	// 1) 加载配置
	configPath := flag.String("config", "", "配置文件路径（留空则按默认顺序查找）")
	flag.Parse()

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动编排流程，阻塞直至收到退出信号
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		zap.L().Error("battery hub exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
