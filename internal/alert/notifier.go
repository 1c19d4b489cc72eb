package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/metrics"
)

// NotifierConfig 告警通知配置
type NotifierConfig struct {
	WebhookURL string
	// SOCLow 低电量阈值（百分比）
	SOCLow  float64
	Timeout time.Duration
}

func (c *NotifierConfig) normalize() {
	if c.SOCLow <= 0 {
		c.SOCLow = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Notifier 把采集事件转换为 Webhook 告警。
// 实现 device.Sink；回调由总线分发 goroutine 串行驱动，推送阻塞只影响自身队列。
// SOC 告警为边沿触发：跌破阈值发一次，回升后再发恢复，期间不重复。
type Notifier struct {
	cfg    NotifierConfig
	pusher *Pusher
	dedup  *Deduper
	log    *zap.Logger
	appm   *metrics.AppMetrics

	mu  sync.Mutex
	low map[coremodel.DeviceID]bool
}

func NewNotifier(cfg NotifierConfig, pusher *Pusher, dedup *Deduper, log *zap.Logger, appm *metrics.AppMetrics) *Notifier {
	cfg.normalize()
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		cfg:    cfg,
		pusher: pusher,
		dedup:  dedup,
		log:    log,
		appm:   appm,
		low:    make(map[coremodel.DeviceID]bool),
	}
}

func (n *Notifier) OnReading(id coremodel.DeviceID, r coremodel.Reading) {
	if r.SOC != nil {
		n.checkSOC(id, *r.SOC)
	}
	if len(r.Alarms) > 0 {
		n.push(EventBatteryAlarm, id, map[string]interface{}{
			"alarms":  r.Alarms,
			"soc":     r.SOC,
			"voltage": r.Voltage,
		})
	}
}

func (n *Notifier) OnFault(id coremodel.DeviceID, kind coremodel.FaultKind, detail string) {
	n.push(EventSessionFaulted, id, map[string]interface{}{
		"kind":   string(kind),
		"detail": detail,
	})
}

func (n *Notifier) OnStateChange(id coremodel.DeviceID, state coremodel.SessionState) {
	if state != coremodel.SessionClosed {
		return
	}
	n.push(EventSessionClosed, id, map[string]interface{}{
		"state": string(state),
	})
}

// checkSOC 阈值穿越检测
func (n *Notifier) checkSOC(id coremodel.DeviceID, soc float64) {
	low := soc < n.cfg.SOCLow

	n.mu.Lock()
	prev := n.low[id]
	n.low[id] = low
	n.mu.Unlock()

	if low == prev {
		return
	}
	data := map[string]interface{}{
		"soc":       soc,
		"threshold": n.cfg.SOCLow,
	}
	if low {
		n.push(EventSOCLow, id, data)
	} else {
		n.push(EventSOCRecovered, id, data)
	}
}

func (n *Notifier) push(et EventType, id coremodel.DeviceID, data map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
	defer cancel()

	dedupKey := dedupKeyFor(et, id, data)
	if n.dedup != nil && n.dedup.IsDuplicate(ctx, dedupKey) {
		n.count(et, "dedup")
		n.log.Debug("告警在去重窗口内，跳过",
			zap.String("device", string(id)),
			zap.String("event_type", string(et)))
		return
	}

	evt := NewEvent(et, string(id), data)
	code, _, err := n.pusher.SendJSON(ctx, n.cfg.WebhookURL, evt)
	if err != nil || code < 200 || code >= 300 {
		n.count(et, "failed")
		n.log.Error("告警推送失败",
			zap.String("device", string(id)),
			zap.String("event_type", string(et)),
			zap.Int("code", code),
			zap.Error(err))
		return
	}
	n.count(et, "success")
	n.log.Info("告警已推送",
		zap.String("device", string(id)),
		zap.String("event_type", string(et)),
		zap.String("event_id", evt.EventID),
		zap.Int("code", code))
}

func (n *Notifier) count(et EventType, result string) {
	if n.appm != nil {
		n.appm.AlertPushTotal.WithLabelValues(string(et), result).Inc()
	}
}

// dedupKeyFor 语义去重键：同设备同类事件共用；故障按 kind 细分。
// SOC 事件本身就是边沿触发，不再做 TTL 去重（返回空键），
// 否则恢复后的再次跌破会被窗口吞掉。
func dedupKeyFor(et EventType, id coremodel.DeviceID, data map[string]interface{}) string {
	switch et {
	case EventSOCLow, EventSOCRecovered:
		return ""
	case EventSessionFaulted:
		key := fmt.Sprintf("%s:%s", id, et)
		if kind, ok := data["kind"].(string); ok {
			key += ":" + kind
		}
		return key
	default:
		return fmt.Sprintf("%s:%s", id, et)
	}
}
