package alert

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// EventType 告警事件类型
type EventType string

const (
	// EventSOCLow SOC 跌破阈值（边沿触发，恢复前只发一次）
	EventSOCLow EventType = "battery.soc_low"

	// EventSOCRecovered SOC 回到阈值之上
	EventSOCRecovered EventType = "battery.soc_recovered"

	// EventBatteryAlarm BMS 上报了保护/告警标志
	EventBatteryAlarm EventType = "battery.alarm"

	// EventSessionFaulted 采集会话进入故障（断链、无匹配档案、读数越界）
	EventSessionFaulted EventType = "session.faulted"

	// EventSessionClosed 重连耗尽，会话关闭（需人工介入）
	EventSessionClosed EventType = "session.closed"
)

// StandardEvent Webhook 推送的标准事件结构
type StandardEvent struct {
	// 基础字段
	EventID   string    `json:"event_id"`   // 事件唯一ID
	EventType EventType `json:"event_type"` // 事件类型
	DeviceID  string    `json:"device_id"`  // 逻辑设备ID
	Timestamp int64     `json:"timestamp"`  // 事件时间戳（Unix秒）
	Nonce     string    `json:"nonce"`      // 随机数（用于签名）

	// 业务数据
	Data map[string]interface{} `json:"data"`
}

// NewEvent 创建标准事件
func NewEvent(eventType EventType, deviceID string, data map[string]interface{}) *StandardEvent {
	return &StandardEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		DeviceID:  deviceID,
		Timestamp: time.Now().Unix(),
		Nonce:     fmt.Sprintf("%08x", rand.Uint32()),
		Data:      data,
	}
}
