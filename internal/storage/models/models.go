package models

import (
	"time"
)

// 注意：
// - 保持与 db/migrations 下的建表语句完全对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// Device 映射 devices 表（设备注册表）
type Device struct {
	// 主键
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 配置内唯一的逻辑设备标识
	DeviceID string `gorm:"column:device_id;type:text;not null;uniqueIndex"`
	// BLE 物理地址（MAC 或平台设备句柄）
	Address string `gorm:"column:address;type:text;not null"`
	// 展示名，可空
	Name *string `gorm:"column:name;type:text"`
	// 探测确认后固定的协议档案；为空表示每次连接重新探测
	PinnedProfile *string `gorm:"column:pinned_profile;type:text"`
	// 最近一次会话状态
	LastState *string `gorm:"column:last_state;type:text"`
	// 最近一次成功读数时间
	LastSeenAt *time.Time `gorm:"column:last_seen_at"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Device) TableName() string { return "devices" }
