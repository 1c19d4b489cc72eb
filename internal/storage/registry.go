package storage

import (
	"context"
	"time"

	"github.com/driller442/BatteryHub/internal/storage/models"
)

// Registry 设备注册表的存储抽象。
// 约束：
// - 上层不直接写 SQL，统一通过本接口访问
// - 接口保持 DB-agnostic（面向模型与基础类型）
// - 注册表是可选依赖：database.enabled=false 时上层持有 nil 并跳过所有调用
type Registry interface {
	// EnsureDevice 若 deviceID 不存在则创建，存在则刷新地址/名称
	EnsureDevice(ctx context.Context, deviceID, address, name string) (*models.Device, error)
	// TouchDeviceSeen 刷新设备最近读数时间与会话状态
	TouchDeviceSeen(ctx context.Context, deviceID string, at time.Time, state string) error
	// UpdateDeviceState 仅刷新会话状态，不动最近读数时间
	UpdateDeviceState(ctx context.Context, deviceID, state string) error
	// SetPinnedProfile 固定设备的协议档案（探测向导写入）；profile 为空串表示解除固定
	SetPinnedProfile(ctx context.Context, deviceID, profile string) error
	// GetDevice 通过逻辑 ID 查询设备
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	// ListDevices 返回全部设备，按 device_id 升序
	ListDevices(ctx context.Context) ([]models.Device, error)
}
