package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/driller442/BatteryHub/internal/config"
	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/device"
	"github.com/driller442/BatteryHub/internal/metrics"
	"github.com/driller442/BatteryHub/internal/protocol"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
	"github.com/driller442/BatteryHub/internal/transport"
	"github.com/driller442/BatteryHub/internal/transport/bleclient"
)

// GATTSpecs 为每个设备展开候选 GATT 规格。显式 UUID 覆盖优先（三项必须同时给出），
// 否则按候选档案的厂商默认 UUID 依探测顺序展开。
func GATTSpecs(devices []cfgpkg.DeviceConfig, cands map[string][]profile.Profile, log *zap.Logger) map[string][]bleclient.GATTSpec {
	specs := make(map[string][]bleclient.GATTSpec, len(devices))
	for _, d := range devices {
		if d.ServiceUUID != "" || d.NotifyUUID != "" || d.WriteUUID != "" {
			if d.ServiceUUID != "" && d.NotifyUUID != "" && d.WriteUUID != "" {
				specs[d.Address] = []bleclient.GATTSpec{{
					Service: d.ServiceUUID,
					Notify:  d.NotifyUUID,
					Write:   d.WriteUUID,
				}}
				continue
			}
			log.Warn("incomplete gatt override ignored, falling back to profile defaults",
				zap.String("device", d.ID))
		}
		list := make([]bleclient.GATTSpec, 0, len(cands[d.ID]))
		for _, p := range cands[d.ID] {
			svc, ntf, wr := protocol.GATTDefaults(p.ID())
			list = append(list, bleclient.GATTSpec{Service: svc, Notify: ntf, Write: wr})
		}
		specs[d.Address] = list
	}
	return specs
}

// BuildSupervisor 组装监督者与各设备采集会话
func BuildSupervisor(
	cfg *cfgpkg.Config,
	tr transport.Transport,
	cands map[string][]profile.Profile,
	bus *device.Bus,
	log *zap.Logger,
	appm *metrics.AppMetrics,
) (*device.Supervisor, error) {
	sup := device.NewSupervisor(tr, device.ReconnectConfig{
		ConnectTimeout: cfg.Engine.ConnectTimeout,
		BackoffBase:    cfg.Engine.BackoffBase,
		BackoffCap:     cfg.Engine.BackoffCap,
		MaxAttempts:    cfg.Engine.MaxAttempts,
	}, log, appm)

	for _, d := range cfg.Devices {
		sc := device.Config{
			ConfirmThreshold: cfg.Engine.ConfirmThreshold,
			DemoteThreshold:  cfg.Engine.DemoteThreshold,
			NoMatchLimit:     cfg.Engine.NoMatchLimit,
			PollInterval:     cfg.Engine.PollInterval,
			ProbeTimeout:     cfg.Engine.ProbeTimeout,
			WriteRate:        cfg.Engine.WriteRate,
		}
		// 单设备轮询周期覆盖
		if d.PollInterval > 0 {
			sc.PollInterval = d.PollInterval
		}
		s := device.NewSession(coremodel.DeviceID(d.ID), d.Address, cands[d.ID], sc, bus, log, appm)
		if err := sup.Add(s); err != nil {
			return nil, err
		}
	}
	return sup, nil
}
