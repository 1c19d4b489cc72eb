// Package protocol 汇集各厂商协议档案并定义探测优先级。
// 新增厂商：实现 profile.Profile 后在 All 中按优先级挂入。
package protocol

import (
	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/protocol/ant"
	"github.com/driller442/BatteryHub/internal/protocol/daly"
	"github.com/driller442/BatteryHub/internal/protocol/jbd"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

// All 返回全部内建档案的新实例，顺序即固定探测优先级。
// reasons 为 JBD 保护标志描述映射，nil 用内置默认。
func All(reasons *jbd.ReasonMap) []profile.Profile {
	return []profile.Profile{jbd.New(reasons), daly.New(), ant.New()}
}

// ByID 按档案标识查找；用于配置钉定与向导
func ByID(id coremodel.ProfileID) (profile.Profile, bool) {
	for _, p := range All(nil) {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// GATTDefaults 各厂商默认的服务/通知/写入特征 UUID
func GATTDefaults(id coremodel.ProfileID) (service, notify, write string) {
	switch id {
	case coremodel.ProfileDaly:
		return daly.ServiceUUID, daly.NotifyUUID, daly.WriteUUID
	case coremodel.ProfileANT:
		return ant.ServiceUUID, ant.NotifyUUID, ant.WriteUUID
	default:
		return jbd.ServiceUUID, jbd.NotifyUUID, jbd.WriteUUID
	}
}
