package coremodel

import "time"

// DeviceID 统一设备标识（配置内唯一，区别于 BLE 物理地址）
type DeviceID string

// ProfileID 协议档案标识（厂商/型号）
type ProfileID string

const (
	ProfileJBD  ProfileID = "jbd"
	ProfileDaly ProfileID = "daly"
	ProfileANT  ProfileID = "ant"
)

// SessionState 采集会话状态机状态
type SessionState string

const (
	// SessionDetecting 未确认协议档案，逐个探测
	SessionDetecting SessionState = "detecting"
	// SessionStreaming 档案已确认，读数持续产出
	SessionStreaming SessionState = "streaming"
	// SessionFaulted 传输断开，等待监督者重连
	SessionFaulted SessionState = "faulted"
	// SessionClosed 重连耗尽后的终态，不再自动恢复
	SessionClosed SessionState = "closed"
)

// FaultKind 通过 Sink 对外上报的故障类别；均为单设备级，不影响进程
type FaultKind string

const (
	FaultNoMatchingProfile     FaultKind = "no_matching_profile"
	FaultFieldOutOfRange       FaultKind = "field_out_of_range"
	FaultTransportDisconnected FaultKind = "transport_disconnected"
	FaultReconnectExhausted    FaultKind = "reconnect_exhausted"
)

// Reading 协议无关的规范化遥测快照。
// 指针字段为 nil 表示该协议不支持该字段，与数值 0（如休眠电池）严格区分。
// 所有已填充的数值保证有限（非 NaN/Inf）。
type Reading struct {
	// At 帧完成时刻（重组器出帧时间，而非分片到达或解码时间）
	At      time.Time `json:"at"`
	Profile ProfileID `json:"profile"`

	// Voltage 总电压，伏
	Voltage *float64 `json:"voltage,omitempty"`
	// Current 电流，安；正值=充电
	Current *float64 `json:"current,omitempty"`
	// SOC 剩余电量百分比 0-100
	SOC *float64 `json:"soc,omitempty"`
	// RemainingAh 剩余容量，安时
	RemainingAh *float64 `json:"remaining_ah,omitempty"`
	// Cycles 循环次数；ANT 等协议不上报时为 nil
	Cycles *int `json:"cycles,omitempty"`

	// Temps 温度传感器读数，摄氏度，0 个或多个
	Temps []float64 `json:"temps,omitempty"`
	// Cells 电芯电压有序序列，伏，长度=检测到的电芯数
	Cells []float64 `json:"cells,omitempty"`
	// CellDelta 电芯压差 max-min，伏；无电芯数据时为 nil
	CellDelta *float64 `json:"cell_delta,omitempty"`

	// Alarms 保护/告警标志（协议提供时），已映射为平台统一描述
	Alarms []string `json:"alarms,omitempty"`
}

// HasCells 是否携带电芯级数据
func (r *Reading) HasCells() bool { return len(r.Cells) > 0 }
