package app

import (
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/driller442/BatteryHub/internal/config"
	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/protocol"
	"github.com/driller442/BatteryHub/internal/protocol/jbd"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

// NewJBDReasonMap 构建 JBD 保护标志描述映射，可用 YAML 文件覆盖内置默认
func NewJBDReasonMap(cfg cfgpkg.JBDConfig, log *zap.Logger) *jbd.ReasonMap {
	rm := jbd.DefaultReasonMap()
	if cfg.ReasonMapPath == "" {
		return rm
	}
	if err := rm.LoadFile(cfg.ReasonMapPath); err != nil {
		log.Warn("load jbd reason map failed",
			zap.String("path", cfg.ReasonMapPath), zap.Error(err))
		return rm
	}
	log.Info("jbd reason map loaded", zap.String("path", cfg.ReasonMapPath))
	return rm
}

// CandidateProfiles 单设备的候选档案集；pinned 非空时只保留该档案。
// 未钉定时的顺序即固定探测优先级。
func CandidateProfiles(pinned coremodel.ProfileID, reasons *jbd.ReasonMap) ([]profile.Profile, error) {
	all := protocol.All(reasons)
	if pinned == "" {
		return all, nil
	}
	for _, p := range all {
		if p.ID() == pinned {
			return []profile.Profile{p}, nil
		}
	}
	return nil, fmt.Errorf("unknown profile %q", pinned)
}
