package health

import (
	"context"
	"time"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// SessionStates 健康检查读取会话状态的最小接口（由 device.Supervisor 实现）
type SessionStates interface {
	States() map[coremodel.DeviceID]coremodel.SessionState
}

// SupervisorChecker 采集监督者健康检查器
type SupervisorChecker struct {
	sup SessionStates
}

// NewSupervisorChecker 创建监督者健康检查器
func NewSupervisorChecker(sup SessionStates) *SupervisorChecker {
	return &SupervisorChecker{sup: sup}
}

// Name 返回检查器名称
func (c *SupervisorChecker) Name() string {
	return "supervisor"
}

// Check 执行健康检查。
// 有设备但全部终态关闭视为不健康；存在故障/关闭会话视为降级。
func (c *SupervisorChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	states := c.sup.States()

	var streaming, detecting, faulted, closed int
	perDevice := make(map[string]interface{}, len(states))
	for id, st := range states {
		perDevice[string(id)] = string(st)
		switch st {
		case coremodel.SessionStreaming:
			streaming++
		case coremodel.SessionDetecting:
			detecting++
		case coremodel.SessionFaulted:
			faulted++
		case coremodel.SessionClosed:
			closed++
		}
	}

	status := StatusHealthy
	message := "ok"
	switch {
	case len(states) == 0:
		message = "no devices configured"
	case closed == len(states):
		status = StatusUnhealthy
		message = "all sessions closed"
	case faulted > 0 || closed > 0:
		status = StatusDegraded
		message = "some sessions faulted or closed"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"devices":   len(states),
			"streaming": streaming,
			"detecting": detecting,
			"faulted":   faulted,
			"closed":    closed,
			"sessions":  perDevice,
		},
		Latency: time.Since(start),
	}
}
