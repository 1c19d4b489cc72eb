package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/storage"
)

const registryTouchTimeout = 5 * time.Second

// RegistrySink 把读数时间与会话状态同步进设备注册表；实现 device.Sink。
// 写失败只记日志：注册表是运维视图，不能反压采集。
type RegistrySink struct {
	reg storage.Registry
	log *zap.Logger
}

func NewRegistrySink(reg storage.Registry, log *zap.Logger) *RegistrySink {
	return &RegistrySink{reg: reg, log: log}
}

func (s *RegistrySink) OnReading(id coremodel.DeviceID, r coremodel.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), registryTouchTimeout)
	defer cancel()
	if err := s.reg.TouchDeviceSeen(ctx, string(id), r.At, string(coremodel.SessionStreaming)); err != nil {
		s.log.Warn("刷新设备在线信息失败", zap.String("device", string(id)), zap.Error(err))
	}
}

func (s *RegistrySink) OnFault(coremodel.DeviceID, coremodel.FaultKind, string) {}

func (s *RegistrySink) OnStateChange(id coremodel.DeviceID, state coremodel.SessionState) {
	ctx, cancel := context.WithTimeout(context.Background(), registryTouchTimeout)
	defer cancel()
	if err := s.reg.UpdateDeviceState(ctx, string(id), string(state)); err != nil {
		s.log.Warn("刷新设备状态失败", zap.String("device", string(id)), zap.Error(err))
	}
}
